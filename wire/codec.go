// File: wire/codec.go
package wire

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/lguibr/harness/actors"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MaxFrameSize bounds the body of a single frame.
const MaxFrameSize = 16 << 20

// ErrFrameTooLarge is returned for frames whose body exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

const (
	fieldCapability protowire.Number = 1
	fieldSelector   protowire.Number = 2
	fieldArgs       protowire.Number = 3
)

// Marshal encodes msg as a frame body. Arguments must be nil, bools,
// numbers, strings, string slices, or lists and maps of those.
func Marshal(msg actors.Message) ([]byte, error) {
	args := msg.Args()
	for i, arg := range args {
		if list, ok := arg.([]string); ok {
			converted := make([]any, len(list))
			for j, s := range list {
				converted[j] = s
			}
			args[i] = converted
		}
	}
	list, err := structpb.NewList(args)
	if err != nil {
		return nil, errors.Wrapf(err, "could not encode arguments of %s", msg)
	}
	rawArgs, err := proto.Marshal(list)
	if err != nil {
		return nil, errors.WithMessage(err, "could not marshal arguments")
	}

	var b []byte
	b = protowire.AppendTag(b, fieldCapability, protowire.BytesType)
	b = protowire.AppendString(b, msg.Capability())
	b = protowire.AppendTag(b, fieldSelector, protowire.BytesType)
	b = protowire.AppendString(b, msg.Selector())
	b = protowire.AppendTag(b, fieldArgs, protowire.BytesType)
	b = protowire.AppendBytes(b, rawArgs)
	return b, nil
}

// Unmarshal decodes a frame body. Numbers come back as float64 and lists as
// []any; the typed accessors of actors.Message accept both.
func Unmarshal(b []byte) (actors.Message, error) {
	var capability, selector string
	var args []any
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return actors.Message{}, errors.WithMessage(protowire.ParseError(n), "could not read field tag")
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return actors.Message{}, errors.WithMessage(protowire.ParseError(n), "could not skip field")
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return actors.Message{}, errors.WithMessagef(protowire.ParseError(n), "could not read field %d", num)
		}
		b = b[n:]

		switch num {
		case fieldCapability:
			capability = string(v)
		case fieldSelector:
			selector = string(v)
		case fieldArgs:
			list := &structpb.ListValue{}
			if err := proto.Unmarshal(v, list); err != nil {
				return actors.Message{}, errors.WithMessage(err, "could not unmarshal arguments")
			}
			args = list.AsSlice()
		}
	}
	if capability == "" || selector == "" {
		return actors.Message{}, errors.New("frame without capability or selector")
	}
	return actors.NewMessage(capability, selector, args...), nil
}

// AppendFrame appends msg as a frame, prefixed with the body length, to b.
func AppendFrame(b []byte, msg actors.Message) ([]byte, error) {
	body, err := Marshal(msg)
	if err != nil {
		return b, err
	}
	if len(body) > MaxFrameSize {
		return b, errors.Wrapf(ErrFrameTooLarge, "%d bytes", len(body))
	}
	b = binary.AppendUvarint(b, uint64(len(body)))
	return append(b, body...), nil
}

// WriteFrame writes msg as one frame to dest.
func WriteFrame(dest io.Writer, msg actors.Message) error {
	frame, err := AppendFrame(nil, msg)
	if err != nil {
		return err
	}
	if _, err := dest.Write(frame); err != nil {
		return errors.WithMessage(err, "could not write frame")
	}
	return nil
}

// ReadFrame reads one frame from reader. It returns io.EOF unwrapped when
// the stream ends cleanly between frames.
func ReadFrame(reader *bufio.Reader) (actors.Message, error) {
	l, err := binary.ReadUvarint(reader)
	if err != nil {
		if err == io.EOF {
			return actors.Message{}, err
		}
		return actors.Message{}, errors.WithMessage(err, "could not read size prefix")
	}
	if l > MaxFrameSize {
		return actors.Message{}, errors.Wrapf(ErrFrameTooLarge, "%d bytes", l)
	}

	body := make([]byte, l)
	if _, err := io.ReadFull(reader, body); err != nil {
		return actors.Message{}, errors.WithMessage(err, "could not read frame body")
	}
	return Unmarshal(body)
}
