package protocol

import (
	"bytes"
	"fmt"

	"github.com/OpenTraceLab/eeprog/pkg/hexcodec"
)

// TransferSize is the capacity of the transfer buffer used by R, W and S.
const TransferSize = 16

type command struct {
	tag   byte
	name  string
	usage string
	run   func(s *Session, args []byte) error
}

var commands []command

func init() {
	commands = []command{
		{'V', "version", "V                       show version", (*Session).version},
		{'P', "protect", "P                       enable software data protection", (*Session).protect},
		{'U', "unprotect", "U                       disable software data protection", (*Session).unprotect},
		{'R', "read", "R<addr>                 read 16 bytes", (*Session).read},
		{'W', "write", "W<addr>:<data>[,<sum>]  write up to 16 bytes", (*Session).write},
		{'B', "erase", "B                       erase chip", (*Session).erase},
		{'N', "page-prepare", "N<addr>                 prepare page buffer", (*Session).pagePrepare},
		{'S', "page-fill", "S<addr>:<data>[,<sum>]  fill page buffer", (*Session).pageFill},
		{'T', "page-program", "T                       program page buffer", (*Session).pageProgram},
		{'?', "help", "?                       show this help", (*Session).help},
	}
}

func lookup(tag byte) (command, bool) {
	for _, c := range commands {
		if c.tag == tag {
			return c, true
		}
	}
	return command{}, false
}

// transferBuffer is the bounded buffer a payload is decoded into.
type transferBuffer struct {
	data [TransferSize]byte
	n    int
}

func (b *transferBuffer) reset() {
	b.n = 0
}

// append stores v and reports false when the buffer is already full.
func (b *transferBuffer) append(v byte) bool {
	if b.n == len(b.data) {
		return false
	}
	b.data[b.n] = v
	b.n++
	return true
}

func (b *transferBuffer) bytes() []byte {
	return b.data[:b.n]
}

func (s *Session) version(_ []byte) error {
	s.send(Version)
	return nil
}

func (s *Session) help(_ []byte) error {
	s.send("Commands:")
	for _, c := range commands {
		s.send("  " + c.usage)
	}
	return nil
}

func (s *Session) protect(_ []byte) error {
	if err := s.chip.SetSoftwareDataProtection(true); err != nil {
		return err
	}
	s.send(ReplyOK)
	return nil
}

func (s *Session) unprotect(_ []byte) error {
	if err := s.chip.SetSoftwareDataProtection(false); err != nil {
		return err
	}
	s.send(ReplyOK)
	return nil
}

func (s *Session) erase(_ []byte) error {
	if err := s.chip.EraseChip(); err != nil {
		return err
	}
	s.send(ReplyOK)
	return nil
}

func (s *Session) read(args []byte) error {
	addr, n := hexcodec.ParseAddress(args, hexcodec.MaxAddressDigits)
	if n == 0 {
		return fmt.Errorf("%w: R needs an address", ErrMalformed)
	}

	data, err := s.chip.BulkRead(addr, TransferSize)
	if err != nil {
		return err
	}

	line := make([]byte, 0, 4+1+2*TransferSize+1+2)
	line = hexcodec.AppendAddress(line, addr)
	line = append(line, ':')
	line = hexcodec.AppendBytes(line, data)
	line = append(line, ',')
	line = hexcodec.AppendByte(line, hexcodec.XORChecksum(data))
	s.sendBytes(line)
	s.send(ReplyOK)
	return nil
}

func (s *Session) write(args []byte) error {
	addr, data, err := s.decodePayload('W', args)
	if err != nil {
		return err
	}
	if err := s.chip.BulkWrite(addr, data); err != nil {
		return err
	}
	s.send(ReplyOK)
	return nil
}

func (s *Session) pagePrepare(args []byte) error {
	addr, n := hexcodec.ParseAddress(args, hexcodec.MaxAddressDigits)
	if n == 0 {
		return fmt.Errorf("%w: N needs an address", ErrMalformed)
	}
	s.chip.PreparePageBuffer(addr)
	s.send(ReplyOK)
	return nil
}

func (s *Session) pageFill(args []byte) error {
	addr, data, err := s.decodePayload('S', args)
	if err != nil {
		return err
	}
	if err := s.chip.FillPageBuffer(addr, data); err != nil {
		return err
	}
	s.send(ReplyOK)
	return nil
}

func (s *Session) pageProgram(_ []byte) error {
	if err := s.chip.ProgramPageBuffer(); err != nil {
		return err
	}
	s.send(ReplyOK)
	return nil
}

// decodePayload parses "<addr>:<hex pairs>[,<sum>]" into the transfer
// buffer. Pairs past the buffer capacity are dropped; a trailing lone digit
// is ignored. When a comma followed by two characters comes after the data,
// those characters are checked against the XOR of the decoded bytes.
func (s *Session) decodePayload(tag byte, args []byte) (uint16, []byte, error) {
	addr, n := hexcodec.ParseAddress(args, hexcodec.MaxAddressDigits)
	if n == 0 {
		return 0, nil, fmt.Errorf("%w: %c needs an address", ErrMalformed, tag)
	}
	rest := args[n:]
	if len(rest) == 0 || rest[0] != ':' {
		return 0, nil, fmt.Errorf("%w: %c needs ':' after the address", ErrMalformed, tag)
	}
	rest = rest[1:]

	s.xfer.reset()
	i := 0
	for i+1 < len(rest) && rest[i] != ',' && rest[i+1] != ',' {
		if !s.xfer.append(hexcodec.PairValue(rest[i], rest[i+1])) {
			s.log.Debug().Int("dropped", len(rest)-i).Msg("payload truncated to transfer buffer")
			break
		}
		i += 2
	}
	data := s.xfer.bytes()

	if comma := bytes.IndexByte(rest[i:], ','); comma >= 0 {
		sum := rest[i+comma+1:]
		if len(sum) >= 2 {
			given := hexcodec.PairValue(sum[0], sum[1])
			if computed := hexcodec.XORChecksum(data); given != computed {
				return 0, nil, &ChecksumError{Given: given, Computed: computed}
			}
		}
	}
	return addr, data, nil
}
