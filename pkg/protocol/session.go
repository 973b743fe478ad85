package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/OpenTraceLab/eeprog/pkg/chip"
)

const (
	// Version is the reply to the V command.
	Version = "EEPROM Version=0.03"

	// ReplyOK acknowledges a completed command.
	ReplyOK = "OK"

	// ReplyError is the bare error reply.
	ReplyError = "ERR"

	lineEnding = "\r\n"
)

// Chip is the set of chip operations the protocol dispatches to.
// *chip.Programmer implements it.
type Chip interface {
	BulkRead(addr uint16, count int) ([]byte, error)
	BulkWrite(addr uint16, data []byte) error
	SetSoftwareDataProtection(enable bool) error
	EraseChip() error
	PreparePageBuffer(base uint16)
	FillPageBuffer(offset uint16, data []byte) error
	ProgramPageBuffer() error
}

var _ Chip = (*chip.Programmer)(nil)

// State is the position of a Session in its request/response loop.
type State int

const (
	AwaitingLine State = iota
	Dispatching
)

func (s State) String() string {
	switch s {
	case AwaitingLine:
		return "awaiting-line"
	case Dispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session runs the command protocol for one host connection.
type Session struct {
	chip  Chip
	out   *bufio.Writer
	log   zerolog.Logger
	state State
	xfer  transferBuffer
}

// NewSession creates a Session that executes commands on c and writes replies
// to w.
func NewSession(c Chip, w io.Writer, logger zerolog.Logger) *Session {
	return &Session{
		chip: c,
		out:  bufio.NewWriter(w),
		log:  logger.With().Str("component", "protocol").Logger(),
	}
}

// State returns the current loop state.
func (s *Session) State() State {
	return s.state
}

// Serve reads lines from r and dispatches them until r is exhausted. It
// returns nil at the end of input and an error only when the transport
// fails; command errors are answered on the wire and the loop continues.
func (s *Session) Serve(r io.Reader) error {
	lr := NewLineReader(r)
	for {
		s.state = AwaitingLine
		line, err := lr.ReadLine()
		switch {
		case err == nil:
			if err := s.Dispatch(line); err != nil {
				return err
			}
		case errors.Is(err, ErrLineTooLong):
			s.log.Warn().Msg("line too long, discarded")
			s.sendError(err)
			if err := s.out.Flush(); err != nil {
				return fmt.Errorf("protocol: write reply: %w", err)
			}
		case err == io.EOF:
			return nil
		default:
			return fmt.Errorf("protocol: read line: %w", err)
		}
	}
}

// Dispatch executes one command line and writes its replies. An empty line
// is a no-op. The returned error is non-nil only if the replies could not be
// written.
func (s *Session) Dispatch(line []byte) error {
	if len(line) == 0 {
		return nil
	}
	s.state = Dispatching
	defer func() { s.state = AwaitingLine }()

	tag, args := line[0], line[1:]
	cmd, ok := lookup(tag)
	var err error
	if !ok {
		err = &UnknownCommandError{Tag: tag}
	} else {
		s.log.Debug().Str("cmd", cmd.name).Bytes("args", args).Msg("dispatch")
		err = cmd.run(s, args)
	}
	if err != nil {
		s.log.Warn().Err(err).Bytes("line", line).Msg("command failed")
		s.sendError(err)
	}

	if err := s.out.Flush(); err != nil {
		return fmt.Errorf("protocol: write reply: %w", err)
	}
	return nil
}

func (s *Session) send(line string) {
	s.out.WriteString(line)
	s.out.WriteString(lineEnding)
}

func (s *Session) sendBytes(line []byte) {
	s.out.Write(line)
	s.out.WriteString(lineEnding)
}

// sendError maps a command error to its reply line.
func (s *Session) sendError(err error) {
	var (
		sumErr     *ChecksumError
		unknownErr *UnknownCommandError
	)
	switch {
	case errors.Is(err, ErrMalformed):
		s.send(ReplyError)
	case errors.As(err, &sumErr):
		s.send(fmt.Sprintf("%s %02X %02X", ReplyError, sumErr.Given, sumErr.Computed))
	case errors.As(err, &unknownErr):
		s.send(ReplyError + " unknown command " + tagString(unknownErr.Tag))
	case errors.Is(err, ErrLineTooLong):
		s.send(ReplyError + " line too long")
	case errors.Is(err, chip.ErrPageOverflow):
		s.send(ReplyError + " page overflow")
	default:
		s.send(ReplyError + " " + err.Error())
	}
}
