package protocol_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/bmartynov/nats-codec/protocol"
)

// drain decodes every complete message currently in buf.
func drain(dec *protocol.Decoder, buf *protocol.Buffer) []protocol.Message {
	var out []protocol.Message

	for {
		m, err := dec.Decode(buf)
		Expect(err).To(Succeed())

		if m == nil {
			return out
		}

		out = append(out, m)
	}
}

var _ = Describe("Decoder", func() {
	var (
		dec *protocol.Decoder
		buf *protocol.Buffer
	)

	feed := func(s string) {
		_, _ = buf.Write([]byte(s))
	}

	BeforeEach(func() {
		dec = protocol.NewDecoder()
		buf = protocol.NewBuffer(0)
	})

	It("starts waiting for a control line", func() {
		Expect(dec.State()).To(Equal(protocol.StateControlLine))
		Expect(dec.Pending()).To(BeNil())
	})

	It("returns nothing for an empty buffer", func() {
		m, err := dec.Decode(buf)
		Expect(err).To(Succeed())
		Expect(m).To(BeNil())
	})

	It("decodes a publish with its payload", func() {
		feed("PUB FRONT.DOOR BACK.DOOR 11\r\n12345678901\r\n")

		m, err := dec.Decode(buf)
		Expect(err).To(Succeed())
		Expect(m).To(Equal(protocol.NewPub([]byte("FRONT.DOOR"), []byte("BACK.DOOR"), []byte("12345678901"))))
		Expect(buf.Len()).To(BeZero())
	})

	It("decodes a payload holding CRLF", func() {
		feed("MSG FOO 1 6\r\na\r\nb\r\n\r\n")

		m, err := dec.Decode(buf)
		Expect(err).To(Succeed())
		Expect(m.(*protocol.Msg).Payload).To(Equal([]byte("a\r\nb\r\n")))
	})

	It("decodes an empty payload", func() {
		feed("PUB NOTIFY 0\r\n\r\n")

		m, err := dec.Decode(buf)
		Expect(err).To(Succeed())
		Expect(m.(*protocol.Pub).Payload).To(BeEmpty())
		Expect(m.(*protocol.Pub).Payload).NotTo(BeNil())
	})

	It("waits for the whole body plus its terminator", func() {
		feed("MSG FOO 1 5\r\nhello")

		m, err := dec.Decode(buf)
		Expect(err).To(Succeed())
		Expect(m).To(BeNil())
		Expect(dec.State()).To(Equal(protocol.StateBody))
		Expect(dec.Pending()).To(Equal(&protocol.Msg{Subject: []byte("FOO"), SID: 1, Size: 5}))

		feed("\r")
		m, err = dec.Decode(buf)
		Expect(err).To(Succeed())
		Expect(m).To(BeNil())

		feed("\n")
		m, err = dec.Decode(buf)
		Expect(err).To(Succeed())
		Expect(m.(*protocol.Msg).Payload).To(Equal([]byte("hello")))
		Expect(dec.State()).To(Equal(protocol.StateControlLine))
		Expect(dec.Pending()).To(BeNil())
	})

	It("never returns a payload of the wrong size", func() {
		feed("PUB FOO 11\r\n123456789012\r\n")

		_, err := dec.Decode(buf)
		Expect(errors.Is(err, protocol.ErrMissingPayloadTerminator)).To(BeTrue())
	})

	It("does not return a partial payload", func() {
		feed("PUB FOO 11\r\n1234567890")

		m, err := dec.Decode(buf)
		Expect(err).To(Succeed())
		Expect(m).To(BeNil())
	})

	It("waits on the largest declared size without overflowing", func() {
		feed("MSG FOO 1 2147483647\r\nabc")

		m, err := dec.Decode(buf)
		Expect(err).To(Succeed())
		Expect(m).To(BeNil())
		Expect(dec.State()).To(Equal(protocol.StateBody))

		size, ok := protocol.BodySize(dec.Pending())
		Expect(ok).To(BeTrue())
		Expect(size).To(Equal(2147483647))
		Expect(buf.Len()).To(Equal(3))
	})

	It("decodes back to back frames in order", func() {
		feed("MSG A 1 1\r\na\r\nMSG B 2 2\r\nbb\r\nPING\r\nMSG C 3 INBOX 3\r\nccc\r\n")

		out := drain(dec, buf)
		Expect(out).To(Equal([]protocol.Message{
			protocol.NewMsg([]byte("A"), 1, nil, []byte("a")),
			protocol.NewMsg([]byte("B"), 2, nil, []byte("bb")),
			&protocol.Ping{},
			protocol.NewMsg([]byte("C"), 3, []byte("INBOX"), []byte("ccc")),
		}))
		Expect(buf.Len()).To(BeZero())
	})

	It("decodes the same messages whatever the chunk size", func() {
		stream := "INFO {\"server_id\":\"a\",\"version\":\"1\",\"go\":\"go\",\"host\":\"h\",\"port\":4222}\r\n" +
			"+OK\r\n" +
			"MSG FOO.BAR 9 INBOX.34 11\r\nHello World\r\n" +
			"-ERR 'Slow Consumer'\r\n" +
			"PONG\r\n" +
			"MSG FOO 1 0\r\n\r\n"

		all := protocol.NewBuffer(0)
		_, _ = all.Write([]byte(stream))
		expected := drain(protocol.NewDecoder(), all)
		Expect(expected).To(HaveLen(6))

		for chunk := 1; chunk <= len(stream); chunk++ {
			dec := protocol.NewDecoder()
			buf := protocol.NewBuffer(0)

			var got []protocol.Message
			for off := 0; off < len(stream); off += chunk {
				end := off + chunk
				if end > len(stream) {
					end = len(stream)
				}

				_, _ = buf.Write([]byte(stream[off:end]))
				got = append(got, drain(dec, buf)...)
			}

			Expect(got).To(Equal(expected), "chunk size %d", chunk)
			Expect(buf.Len()).To(BeZero())
		}
	})

	It("keeps earlier payloads intact while the buffer grows", func() {
		feed("MSG FOO 1 5\r\nfirst\r\n")

		m, err := dec.Decode(buf)
		Expect(err).To(Succeed())
		first := m.(*protocol.Msg)

		feed("MSG BAR 2 4096\r\n" + strings.Repeat("x", 4096) + "\r\n")
		m, err = dec.Decode(buf)
		Expect(err).To(Succeed())
		Expect(m.(*protocol.Msg).Payload).To(HaveLen(4096))

		Expect(first.Subject).To(Equal([]byte("FOO")))
		Expect(first.Payload).To(Equal([]byte("first")))
	})

	Describe("control line limits", func() {
		It("rejects a complete control line over the limit", func() {
			dec = protocol.NewDecoder(protocol.WithMaxControlLine(16))
			feed("PUB " + strings.Repeat("A", 20) + " 1\r\nx\r\n")

			_, err := dec.Decode(buf)
			Expect(errors.Is(err, protocol.ErrControlLineTooLong)).To(BeTrue())
		})

		It("rejects an unterminated control line that can no longer fit", func() {
			dec = protocol.NewDecoder(protocol.WithMaxControlLine(16))
			feed(strings.Repeat("A", 18))

			_, err := dec.Decode(buf)
			Expect(errors.Is(err, protocol.ErrControlLineTooLong)).To(BeTrue())
		})

		It("accepts a line of exactly the limit", func() {
			dec = protocol.NewDecoder(protocol.WithMaxControlLine(len("SUB FOO 1")))
			feed("SUB FOO 1\r\n")

			Expect(dec.Decode(buf)).To(Equal(protocol.NewSub([]byte("FOO"), nil, 1)))
		})

		It("uses the default limit", func() {
			feed(strings.Repeat("A", protocol.DefaultMaxControlLine+2))

			_, err := dec.Decode(buf)
			Expect(errors.Is(err, protocol.ErrControlLineTooLong)).To(BeTrue())
		})

		It("can be disabled", func() {
			dec = protocol.NewDecoder(protocol.WithMaxControlLine(0))
			feed("PUB " + strings.Repeat("A", 8192) + " 1\r\nx\r\n")

			m, err := dec.Decode(buf)
			Expect(err).To(Succeed())
			Expect(m.(*protocol.Pub).Subject).To(HaveLen(8192))
		})
	})

	It("reports malformed control lines", func() {
		feed("FOO BAR\r\n")

		_, err := dec.Decode(buf)
		Expect(errors.Is(err, protocol.ErrUnknownOperation)).To(BeTrue())
	})

	It("reports the state by name", func() {
		Expect(protocol.StateControlLine.String()).To(Equal("control-line"))
		Expect(protocol.StateBody.String()).To(Equal("body"))
	})
})

var _ = Describe("BodySize()", func() {
	It("reports the declared size of framed ops", func() {
		size, ok := protocol.BodySize(&protocol.Pub{Size: 3})
		Expect(ok).To(BeTrue())
		Expect(size).To(Equal(3))

		_, ok = protocol.BodySize(&protocol.Ping{})
		Expect(ok).To(BeFalse())

		Expect(protocol.HasBody(&protocol.Msg{})).To(BeTrue())
		Expect(protocol.HasBody(&protocol.Sub{})).To(BeFalse())
	})
})
