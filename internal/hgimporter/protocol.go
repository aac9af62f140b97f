// Package hgimporter implements the framed request/response protocol
// spoken to the "hg debugedenimporthelper" subprocess over a pair of pipes
// (spec.md §4.8), and the retry-once-on-transient-error wrapper around it.
package hgimporter

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

// Command identifies the kind of frame being sent or received.
type Command uint32

const (
	CmdStarted      Command = 0
	CmdResponse     Command = 1
	CmdFetchTree    Command = 5
	CmdCatFile      Command = 7
	CmdGetFileSize  Command = 8
	CmdCatTree      Command = 9
)

// Flag bits carried in a frame header.
type Flag uint32

const (
	FlagError      Flag = 1 << 0
	FlagMoreChunks Flag = 1 << 1
)

// Start flags reported in the CMD_STARTED frame's start_flags field.
type StartFlag uint32

const (
	StartTreemanifestSupported StartFlag = 1 << 0
	StartMononokeSupported     StartFlag = 1 << 1
	StartCatTreeSupported      StartFlag = 1 << 2
)

const frameHeaderSize = 16

// frameHeader is the 16-byte big-endian header preceding every frame's
// payload.
type frameHeader struct {
	RequestID Command
	Command   Command
	Flags     Flag
	DataLen   uint32
}

func writeFrameHeader(w io.Writer, h frameHeader) error {
	var buf [frameHeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.RequestID))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.Command))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.Flags))
	binary.BigEndian.PutUint32(buf[12:16], h.DataLen)
	_, err := w.Write(buf[:])
	return err
}

func readFrameHeader(r io.Reader) (frameHeader, error) {
	var buf [frameHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return frameHeader{}, err
	}
	return frameHeader{
		RequestID: Command(binary.BigEndian.Uint32(buf[0:4])),
		Command:   Command(binary.BigEndian.Uint32(buf[4:8])),
		Flags:     Flag(binary.BigEndian.Uint32(buf[8:12])),
		DataLen:   binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}

// Frame is a parsed request or response: a header plus its payload bytes.
type Frame struct {
	RequestID uint32
	Command   Command
	Flags     Flag
	Data      []byte
}

// writeFrame writes a complete frame (header + payload) to w.
func writeFrame(w io.Writer, requestID uint32, cmd Command, flags Flag, data []byte) error {
	if err := writeFrameHeader(w, frameHeader{RequestID: Command(requestID), Command: cmd, Flags: flags, DataLen: uint32(len(data))}); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := w.Write(data)
	return err
}

// readFrame reads one complete frame from r.
func readFrame(r io.Reader) (Frame, error) {
	h, err := readFrameHeader(r)
	if err != nil {
		return Frame{}, err
	}
	data := make([]byte, h.DataLen)
	if h.DataLen > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return Frame{}, err
		}
	}
	return Frame{RequestID: uint32(h.RequestID), Command: h.Command, Flags: h.Flags, Data: data}, nil
}

// StartedInfo is the parsed payload of the helper's one-time CMD_STARTED
// frame.
type StartedInfo struct {
	ProtocolVersion uint32
	StartFlags      StartFlag
	TreePaths       []string
	MononokeName    string
}

func parseStarted(data []byte) (StartedInfo, error) {
	r := &byteReader{data: data}
	version, err := r.readU32()
	if err != nil {
		return StartedInfo{}, wrapProtocolErr("started: protocol_version", err)
	}
	flags, err := r.readU32()
	if err != nil {
		return StartedInfo{}, wrapProtocolErr("started: start_flags", err)
	}
	numPaths, err := r.readU32()
	if err != nil {
		return StartedInfo{}, wrapProtocolErr("started: num_tree_paths", err)
	}
	info := StartedInfo{ProtocolVersion: version, StartFlags: StartFlag(flags)}
	for i := uint32(0); i < numPaths; i++ {
		path, err := r.readString()
		if err != nil {
			return StartedInfo{}, wrapProtocolErr("started: tree path", err)
		}
		info.TreePaths = append(info.TreePaths, path)
	}
	if info.StartFlags&StartMononokeSupported != 0 {
		name, err := r.readString()
		if err != nil {
			return StartedInfo{}, wrapProtocolErr("started: mononoke name", err)
		}
		info.MononokeName = name
	}
	return info, nil
}

// parseRemoteError parses the payload of a FLAG_ERROR frame: {type, msg}.
func parseRemoteError(data []byte) error {
	r := &byteReader{data: data}
	typ, err := r.readString()
	if err != nil {
		return wrapProtocolErr("error frame: type", err)
	}
	msg, err := r.readString()
	if err != nil {
		return wrapProtocolErr("error frame: msg", err)
	}
	return ederrors.NewRemoteError(typ, msg)
}

func wrapProtocolErr(what string, err error) error {
	return ederrors.NewProtocolError(fmt.Sprintf("hgimporter: %s", what), err)
}

// byteReader is a small cursor over a frame payload used to decode the
// length-prefixed fields the protocol uses throughout.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) readU32() (uint32, error) {
	if len(r.data)-r.pos < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *byteReader) readString() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	if uint32(len(r.data)-r.pos) < n {
		return "", io.ErrUnexpectedEOF
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}
