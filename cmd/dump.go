package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/bmartynov/nats-codec/internal/env"
	"github.com/bmartynov/nats-codec/protocol"
)

var (
	// The number of bytes handed to the decoder at a time
	chunkSize int

	// The longest control line accepted
	maxControlLine int
)

func init() {
	flags := DumpCmd.Flags()

	flags.IntVar(&chunkSize, "chunk", 4096, "Feed the decoder this many bytes at a time")
	flags.IntVar(&maxControlLine, "max-control-line", env.DefaultMaxControlLine, "The longest control line accepted, 0 disables the check")
}

var DumpCmd = &cobra.Command{
	Use:   "dump [file]",
	Short: "Decode a captured protocol stream into JSON lines",
	Long: `Decode a captured protocol stream into JSON lines

The capture is read from file, or from stdin when no file is given, and
fed to the decoder in chunks. Every decoded message is printed as one
JSON object.

Usage
	natscodec dump capture.bin
	tcpdump ... | natscodec dump --chunk 1
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if chunkSize < 1 {
			return fmt.Errorf("Invalid chunk size %d", chunkSize)
		}

		var in io.Reader = cmd.InOrStdin()

		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			in = f
		}

		out := bufio.NewWriter(cmd.OutOrStdout())
		defer out.Flush()

		return dump(in, out, chunkSize, maxControlLine)
	},
}

func dump(in io.Reader, out io.Writer, chunkLen, maxLine int) error {
	buf := protocol.NewBuffer(chunkLen)
	dec := protocol.NewDecoder(protocol.WithMaxControlLine(maxLine))

	var (
		fed   int
		chunk = make([]byte, chunkLen)
	)

	for {
		n, rerr := io.ReadFull(in, chunk)
		if n > 0 {
			_, _ = buf.Write(chunk[:n])
			fed += n

			for {
				offset := fed - buf.Len()

				m, err := dec.Decode(buf)
				if err != nil {
					return fmt.Errorf("Failed to decode at byte %d: %w", offset, err)
				}

				if m == nil {
					break
				}

				line, err := renderMessage(m)
				if err != nil {
					return err
				}

				if _, err := fmt.Fprintln(out, string(line)); err != nil {
					return err
				}
			}
		}

		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}

		if rerr != nil {
			return rerr
		}
	}

	if buf.Len() > 0 || dec.State() != protocol.StateControlLine {
		return fmt.Errorf("Capture ends inside a message, %d bytes left in state %s", buf.Len(), dec.State())
	}

	return nil
}

// renderMessage renders m as a single JSON object.
func renderMessage(m protocol.Message) ([]byte, error) {
	var (
		out = []byte("{}")
		err error
	)

	set := func(path string, value interface{}) {
		if err == nil {
			out, err = sjson.SetBytes(out, path, value)
		}
	}

	setRaw := func(path string, v interface{}) {
		if err != nil {
			return
		}

		var raw []byte
		if raw, err = sonic.Marshal(v); err == nil {
			out, err = sjson.SetRawBytes(out, path, raw)
		}
	}

	// Binary payloads go out as base64, sonic encodes a []byte that way.
	setPayload := func(payload []byte) {
		if utf8.Valid(payload) {
			set("payload", string(payload))
			return
		}

		setRaw("payload_b64", payload)
	}

	set("op", m.Op().String())

	switch v := m.(type) {
	case *protocol.Pub:
		set("subject", string(v.Subject))
		if v.ReplyTo != nil {
			set("reply_to", string(v.ReplyTo))
		}
		set("size", v.Size)
		setPayload(v.Payload)

	case *protocol.Msg:
		set("subject", string(v.Subject))
		set("sid", v.SID)
		if v.ReplyTo != nil {
			set("reply_to", string(v.ReplyTo))
		}
		set("size", v.Size)
		setPayload(v.Payload)

	case *protocol.Sub:
		set("subject", string(v.Subject))
		if v.QueueGroup != nil {
			set("queue_group", string(v.QueueGroup))
		}
		set("sid", v.SID)

	case *protocol.Unsub:
		set("sid", v.SID)
		if v.MaxMessages != nil {
			set("max_messages", *v.MaxMessages)
		}

	case *protocol.Err:
		set("error", v.Message())

	case *protocol.Info:
		setRaw("info", v)

	case *protocol.Connect:
		setRaw("connect", v)
	}

	return out, err
}
