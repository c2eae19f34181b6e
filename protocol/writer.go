package protocol

import (
	"io"
)

// AppendMessage appends the wire form of m to dst. On error dst is returned
// unchanged and no partial frame is produced.
func AppendMessage(dst []byte, m Message) ([]byte, error) {
	out, err := m.appendTo(dst)
	if err != nil {
		return dst, err
	}

	return out, nil
}

// Encode returns the wire form of m.
func Encode(m Message) ([]byte, error) {
	return AppendMessage(nil, m)
}

// WriteMessage writes the wire form of m to w in a single Write.
func WriteMessage(w io.Writer, m Message) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}

	_, err = w.Write(b)
	return err
}

func WriteOk(w io.Writer) error {
	_, err := w.Write(OkTerminal)
	return err
}

func WritePing(w io.Writer) error {
	_, err := w.Write(PingTerminal)
	return err
}

func WritePong(w io.Writer) error {
	_, err := w.Write(PongTerminal)
	return err
}

func WriteError(w io.Writer, e *Err) error {
	return WriteMessage(w, e)
}
