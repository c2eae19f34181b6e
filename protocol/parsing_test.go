package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/bmartynov/nats-codec/protocol"
)

var _ = Describe("Parsing", func() {
	parse := func(line string) (protocol.Message, error) {
		return protocol.ParseControlLine([]byte(line))
	}

	Describe("ParseControlLine()", func() {
		It("returns an error if the operation is unknown", func() {
			_, err := parse("EVIL foo")
			Expect(errors.Is(err, protocol.ErrUnknownOperation)).To(BeTrue())
		})

		It("returns an error for an empty line", func() {
			_, err := parse("")
			Expect(errors.Is(err, protocol.ErrUnknownOperation)).To(BeTrue())
		})

		It("parses bodyless ops", func() {
			Expect(parse("+OK")).To(Equal(&protocol.Ok{}))
			Expect(parse("PING")).To(Equal(&protocol.Ping{}))
			Expect(parse("pong")).To(Equal(&protocol.Pong{}))
			Expect(parse("PING  ")).To(Equal(&protocol.Ping{}))
		})

		It("rejects arguments on bodyless ops", func() {
			_, err := parse("PING now")
			Expect(errors.Is(err, protocol.ErrTooManyFields)).To(BeTrue())
		})

		Describe("PUB", func() {
			It("parses a publish with a reply subject", func() {
				Expect(parse("PUB FRONT.DOOR BACK.DOOR 11")).To(Equal(&protocol.Pub{
					Subject: []byte("FRONT.DOOR"),
					ReplyTo: []byte("BACK.DOOR"),
					Size:    11,
				}))
			})

			It("parses a publish without a reply subject", func() {
				m, err := parse("PUB FRONT.DOOR 11")
				Expect(err).To(Succeed())
				Expect(m).To(Equal(&protocol.Pub{
					Subject: []byte("FRONT.DOOR"),
					Size:    11,
				}))
				Expect(m.(*protocol.Pub).ReplyTo).To(BeNil())
			})

			It("accepts tabs and repeated spaces between fields", func() {
				Expect(parse("pub\tFOO \t  5")).To(Equal(&protocol.Pub{Subject: []byte("FOO"), Size: 5}))
			})

			It("keeps subjects case sensitive", func() {
				Expect(parse("PUB foo.Bar 0")).To(Equal(&protocol.Pub{Subject: []byte("foo.Bar")}))
			})

			It("leaves the payload unset", func() {
				m, err := parse("PUB FOO 3")
				Expect(err).To(Succeed())
				Expect(m.(*protocol.Pub).Payload).To(BeNil())
			})
		})

		Describe("MSG", func() {
			It("parses a delivery with a reply subject", func() {
				Expect(parse("MSG FOO.BAR 9 INBOX.34 11")).To(Equal(&protocol.Msg{
					Subject: []byte("FOO.BAR"),
					SID:     9,
					ReplyTo: []byte("INBOX.34"),
					Size:    11,
				}))
			})

			It("parses a delivery without a reply subject", func() {
				Expect(parse("MSG FOO.BAR 9 11")).To(Equal(&protocol.Msg{
					Subject: []byte("FOO.BAR"),
					SID:     9,
					Size:    11,
				}))
			})
		})

		Describe("SUB", func() {
			It("parses a queue subscription", func() {
				Expect(parse("SUB BAR G1 44")).To(Equal(&protocol.Sub{
					Subject:    []byte("BAR"),
					QueueGroup: []byte("G1"),
					SID:        44,
				}))
			})

			It("parses a plain subscription", func() {
				Expect(parse("SUB FOO 1")).To(Equal(&protocol.Sub{
					Subject: []byte("FOO"),
					SID:     1,
				}))
			})
		})

		Describe("UNSUB", func() {
			It("parses an unsubscribe with a limit", func() {
				m, err := parse("UNSUB 1 5")
				Expect(err).To(Succeed())
				Expect(m).To(Equal(protocol.NewAutoUnsub(1, 5)))
				Expect(*m.(*protocol.Unsub).MaxMessages).To(Equal(uint64(5)))
			})

			It("parses an unsubscribe without a limit", func() {
				m, err := parse("UNSUB 1")
				Expect(err).To(Succeed())
				Expect(m).To(Equal(protocol.NewUnsub(1)))
				Expect(m.(*protocol.Unsub).MaxMessages).To(BeNil())
			})
		})

		Describe("INFO", func() {
			It("parses the server handshake", func() {
				m, err := parse(`INFO {"server_id":"Zk0GQ3JBSrg3oyxCRRlE09","version":"1.2.0","proto":1,"go":"go1.10.3","host":"0.0.0.0","port":4222,"max_payload":1048576,"client_id":2392}`)
				Expect(err).To(Succeed())

				info, ok := m.(*protocol.Info)
				Expect(ok).To(BeTrue())
				Expect(info.ServerID).To(Equal("Zk0GQ3JBSrg3oyxCRRlE09"))
				Expect(info.Version).To(Equal("1.2.0"))
				Expect(info.Proto).To(Equal(protocol.Ptr(1)))
				Expect(info.Go).To(Equal("go1.10.3"))
				Expect(info.Host).To(Equal("0.0.0.0"))
				Expect(info.Port).To(Equal(4222))
				Expect(info.MaxPayload).To(Equal(int64(1048576)))
				Expect(info.ClientID).To(Equal(protocol.Ptr(uint64(2392))))
				Expect(info.Nonce).To(BeNil())
				Expect(info.ConnectURLs).To(BeNil())
				Expect(info.AuthRequired).To(BeFalse())
			})

			It("keeps an empty connect_urls apart from a missing one", func() {
				m, err := parse(`INFO {"server_id":"a","version":"1","go":"go","host":"h","port":1,"connect_urls":[]}`)
				Expect(err).To(Succeed())

				urls := m.(*protocol.Info).ConnectURLs
				Expect(urls).NotTo(BeNil())
				Expect(*urls).To(BeEmpty())
			})

			It("defaults max_payload when it is absent", func() {
				m, err := parse(`INFO {"server_id":"a","version":"1","go":"go","host":"h","port":1}`)
				Expect(err).To(Succeed())
				Expect(m.(*protocol.Info).MaxPayload).To(Equal(int64(protocol.DefaultMaxPayload)))
			})

			It("rejects a handshake missing a required field", func() {
				_, err := parse(`INFO {"version":"1","go":"go","host":"h","port":1}`)
				Expect(errors.Is(err, protocol.ErrMissingJSONField)).To(BeTrue())
			})

			It("rejects malformed JSON", func() {
				_, err := parse(`INFO {"server_id":`)
				Expect(errors.Is(err, protocol.ErrInvalidJSON)).To(BeTrue())
			})

			It("rejects JSON that is not an object", func() {
				_, err := parse(`INFO [1,2]`)
				Expect(errors.Is(err, protocol.ErrInvalidJSON)).To(BeTrue())
			})

			It("rejects fields of the wrong type", func() {
				_, err := parse(`INFO {"server_id":"a","version":"1","go":"go","host":"h","port":"one"}`)
				Expect(errors.Is(err, protocol.ErrInvalidJSON)).To(BeTrue())
			})

			It("rejects a missing blob", func() {
				_, err := parse("INFO")
				Expect(errors.Is(err, protocol.ErrMissingField)).To(BeTrue())

				_, err = parse("INFO ")
				Expect(errors.Is(err, protocol.ErrMissingField)).To(BeTrue())
			})
		})

		Describe("CONNECT", func() {
			It("parses the client handshake", func() {
				m, err := parse(`CONNECT {"verbose":true,"pedantic":false,"lang":"go","name":"sub-1","version":"1.0.0","user":"derek","pass":"s3cr3t","protocol":1}`)
				Expect(err).To(Succeed())
				Expect(m).To(Equal(&protocol.Connect{
					Verbose:  true,
					Lang:     "go",
					Name:     "sub-1",
					Version:  "1.0.0",
					User:     protocol.Ptr("derek"),
					Pass:     protocol.Ptr("s3cr3t"),
					Protocol: protocol.Ptr(1),
				}))
			})

			It("rejects a handshake without a lang", func() {
				_, err := parse(`CONNECT {"name":"","version":"1.0.0"}`)
				Expect(errors.Is(err, protocol.ErrMissingJSONField)).To(BeTrue())
			})

			It("rejects a handshake without a name", func() {
				_, err := parse(`CONNECT {"lang":"go","version":"1.0.0"}`)
				Expect(errors.Is(err, protocol.ErrMissingJSONField)).To(BeTrue())
				Expect(err).To(MatchError(ContainSubstring("name")))
			})

			It("accepts an empty name", func() {
				m, err := parse(`CONNECT {"lang":"go","name":"","version":"1.0.0"}`)
				Expect(err).To(Succeed())
				Expect(m.(*protocol.Connect).Name).To(BeEmpty())
			})
		})

		Describe("-ERR", func() {
			It("keeps quotes inside the error text", func() {
				m, err := parse(`-ERR 'Permissions Violation for Publish to "foo"'`)
				Expect(err).To(Succeed())
				Expect(m).To(Equal(protocol.PermissionsViolationForPublish(`"foo"`)))
			})

			It("returns an error if the text is not quoted", func() {
				_, err := parse("-ERR Stale Connection")
				Expect(errors.Is(err, protocol.ErrMalformedError)).To(BeTrue())
			})

			It("returns an error if the closing quote is missing", func() {
				_, err := parse("-ERR 'Stale Connection")
				Expect(errors.Is(err, protocol.ErrMalformedError)).To(BeTrue())
			})

			It("returns an error if there is text after the closing quote", func() {
				_, err := parse("-ERR 'Stale Connection' now")
				Expect(errors.Is(err, protocol.ErrMalformedError)).To(BeTrue())
			})
		})

		DescribeTable("reports malformed control lines",
			func(line string, expected error) {
				m, err := parse(line)
				Expect(m).To(BeNil())
				Expect(errors.Is(err, expected)).To(BeTrue(), "got %v", err)
			},
			Entry("pub without fields", "PUB", protocol.ErrMissingField),
			Entry("pub without size", "PUB FOO", protocol.ErrMissingField),
			Entry("pub with non numeric size", "PUB FOO BAR", protocol.ErrInvalidNumber),
			Entry("pub with negative size", "PUB FOO -1", protocol.ErrInvalidNumber),
			Entry("pub with too many fields", "PUB FOO BAR BAZ 5", protocol.ErrTooManyFields),
			Entry("pub with oversized size", "PUB FOO 99999999999", protocol.ErrInvalidNumber),
			Entry("msg without sid", "MSG FOO 11", protocol.ErrMissingField),
			Entry("msg with non numeric sid", "MSG FOO X 11", protocol.ErrInvalidNumber),
			Entry("msg with too many fields", "MSG FOO 1 R 2 3", protocol.ErrTooManyFields),
			Entry("sub without sid", "SUB FOO", protocol.ErrMissingField),
			Entry("sub with non numeric sid", "SUB FOO G1", protocol.ErrInvalidNumber),
			Entry("unsub without sid", "UNSUB", protocol.ErrMissingField),
			Entry("unsub with non numeric max", "UNSUB 1 x", protocol.ErrInvalidNumber),
			Entry("unsub with too many fields", "UNSUB 1 2 3", protocol.ErrTooManyFields),
			Entry("err without text", "-ERR", protocol.ErrMissingField),
		)
	})

	Describe("ParseErrText()", func() {
		DescribeTable("maps every catalog entry to its kind",
			func(line string, expected *protocol.Err) {
				Expect(parse(line)).To(Equal(expected))
			},
			Entry("unknown protocol operation", "-ERR 'Unknown Protocol Operation'", protocol.NewErr(protocol.ErrKindUnknownProtocolOperation)),
			Entry("route port", "-ERR 'Attempted To Connect To Route Port'", protocol.NewErr(protocol.ErrKindAttemptedToConnectToRoutePort)),
			Entry("authorization violation", "-ERR 'Authorization Violation'", protocol.NewErr(protocol.ErrKindAuthorizationViolation)),
			Entry("authorization timeout", "-ERR 'Authorization Timeout'", protocol.NewErr(protocol.ErrKindAuthorizationTimeout)),
			Entry("invalid client protocol", "-ERR 'Invalid Client Protocol'", protocol.NewErr(protocol.ErrKindInvalidClientProtocol)),
			Entry("control line", "-ERR 'Maximum Control Line Exceeded'", protocol.NewErr(protocol.ErrKindMaximumControlLineExceeded)),
			Entry("parser error", "-ERR 'Parser Error'", protocol.NewErr(protocol.ErrKindParserError)),
			Entry("tls required", "-ERR 'Secure Connection - TLS Required'", protocol.NewErr(protocol.ErrKindSecureConnectionTLSRequired)),
			Entry("stale connection", "-ERR 'Stale Connection'", protocol.NewErr(protocol.ErrKindStaleConnection)),
			Entry("max connections", "-ERR 'Maximum Connections Exceeded'", protocol.NewErr(protocol.ErrKindMaximumConnectionsExceeded)),
			Entry("slow consumer", "-ERR 'Slow Consumer'", protocol.NewErr(protocol.ErrKindSlowConsumer)),
			Entry("max payload", "-ERR 'Maximum Payload Violation'", protocol.NewErr(protocol.ErrKindMaximumPayloadViolation)),
			Entry("invalid subject", "-ERR 'Invalid Subject'", protocol.NewErr(protocol.ErrKindInvalidSubject)),
			Entry("subscription permission", "-ERR 'Permissions Violation for Subscription to topic'", protocol.PermissionsViolationForSubscription("topic")),
			Entry("publish permission", "-ERR 'Permissions Violation for Publish to topic'", protocol.PermissionsViolationForPublish("topic")),
			Entry("unknown", "-ERR 'unknown error'", protocol.UnknownErr("unknown error")),
			Entry("empty", "-ERR ''", protocol.UnknownErr("")),
		)

		It("keeps unknown text verbatim", func() {
			e := protocol.ParseErrText([]byte("authorization violation"))
			Expect(e.Kind).To(Equal(protocol.ErrKindUnknown))
			Expect(e.Message()).To(Equal("authorization violation"))
		})

		It("renders the wire text", func() {
			Expect(protocol.NewErr(protocol.ErrKindSlowConsumer).Message()).To(Equal("Slow Consumer"))
			Expect(protocol.PermissionsViolationForSubscription("a.b").Message()).To(Equal("Permissions Violation for Subscription to a.b"))
			Expect(protocol.UnknownErr("boom").Error()).To(Equal("nats: boom"))
		})
	})
})
