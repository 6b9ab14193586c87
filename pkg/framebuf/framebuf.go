package framebuf

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/cadencevoice/cadence/internal/types"
	"github.com/smallnest/ringbuffer"
)

// FrameTail retains the most recent raw audio frames of a session in a
// bounded ring. Old frames are evicted as new ones arrive; it exists for
// diagnostics and STT replay, never for the decision path.
type FrameTail interface {
	Enqueue(frame types.AudioFrame) error
	Dequeue() (types.AudioFrame, bool)
	PeekN(n int32) []types.AudioFrame
	Len() int
	Capacity() int
}

const (
	flagHasSpeech  = 1 << 0
	flagIsOperator = 1 << 1
)

// MarshalFrame encodes a frame for ring storage.
// Format: timestamp(8) + sampleRate(4) + channels(2) + flags(1) +
// speakerLen(1) + speaker + dataLen(4) + data.
func MarshalFrame(f types.AudioFrame) ([]byte, error) {
	if len(f.SpeakerID) > 255 {
		return nil, errors.New("speaker id too long")
	}
	buf := make([]byte, 8+4+2+1+1+len(f.SpeakerID)+4+len(f.Data))

	offset := 0
	binary.LittleEndian.PutUint64(buf[offset:], uint64(f.Timestamp.UnixNano()))
	offset += 8
	binary.LittleEndian.PutUint32(buf[offset:], uint32(f.SampleRate))
	offset += 4
	binary.LittleEndian.PutUint16(buf[offset:], uint16(f.Channels))
	offset += 2

	var flags byte
	if f.HasSpeech {
		flags |= flagHasSpeech
	}
	if f.IsOperator {
		flags |= flagIsOperator
	}
	buf[offset] = flags
	offset++

	buf[offset] = byte(len(f.SpeakerID))
	offset++
	copy(buf[offset:], f.SpeakerID)
	offset += len(f.SpeakerID)

	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(f.Data)))
	offset += 4
	copy(buf[offset:], f.Data)

	return buf, nil
}

func UnmarshalFrame(data []byte) (types.AudioFrame, error) {
	var f types.AudioFrame
	if len(data) < 20 {
		return f, errors.New("frame record truncated")
	}

	offset := 0
	f.Timestamp = time.Unix(0, int64(binary.LittleEndian.Uint64(data[offset:])))
	offset += 8
	f.SampleRate = int32(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	f.Channels = int16(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2

	flags := data[offset]
	offset++
	f.HasSpeech = flags&flagHasSpeech != 0
	f.IsOperator = flags&flagIsOperator != 0

	speakerLen := int(data[offset])
	offset++
	if len(data[offset:]) < speakerLen+4 {
		return f, errors.New("frame record truncated")
	}
	f.SpeakerID = string(data[offset : offset+speakerLen])
	offset += speakerLen

	dataLen := binary.LittleEndian.Uint32(data[offset:])
	offset += 4
	if len(data[offset:]) < int(dataLen) {
		return f, errors.New("frame record truncated")
	}
	f.Data = make([]byte, dataLen)
	copy(f.Data, data[offset:offset+int(dataLen)])

	return f, nil
}

type tailImpl struct {
	size int
	rb   *ringbuffer.RingBuffer
}

func New(size int) FrameTail {
	return &tailImpl{
		size: size,
		rb:   ringbuffer.New(size).SetBlocking(false),
	}
}

// Capacity implements FrameTail.
func (t *tailImpl) Capacity() int {
	return t.size
}

// Len implements FrameTail.
func (t *tailImpl) Len() int {
	return t.rb.Length()
}

// Enqueue implements FrameTail. Oldest frames are dropped when the ring is
// short on space.
func (t *tailImpl) Enqueue(frame types.AudioFrame) error {
	data, err := MarshalFrame(frame)
	if err != nil {
		return err
	}

	requiredSpace := len(data) + 4
	if requiredSpace > t.rb.Capacity() {
		return errors.New("audio frame too large for buffer")
	}

	for t.rb.Free() < requiredSpace {
		if !t.removeOldestFrame() {
			t.rb.Reset()
			break
		}
	}

	sizeBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBytes, uint32(len(data)))
	if _, err := t.rb.Write(sizeBytes); err != nil {
		return err
	}
	_, err = t.rb.Write(data)
	return err
}

// Dequeue implements FrameTail.
func (t *tailImpl) Dequeue() (types.AudioFrame, bool) {
	if t.rb.IsEmpty() {
		return types.AudioFrame{}, false
	}

	sizeBytes := make([]byte, 4)
	n, err := t.rb.Read(sizeBytes)
	if err != nil || n != 4 {
		return types.AudioFrame{}, false
	}
	size := int(binary.LittleEndian.Uint32(sizeBytes))

	data := make([]byte, size)
	n, err = t.rb.Read(data)
	if err != nil || n != size {
		return types.AudioFrame{}, false
	}

	frame, err := UnmarshalFrame(data)
	if err != nil {
		return types.AudioFrame{}, false
	}
	return frame, true
}

// PeekN implements FrameTail without consuming the ring.
func (t *tailImpl) PeekN(n int32) []types.AudioFrame {
	result := make([]types.AudioFrame, 0, n)
	if t.rb.IsEmpty() {
		return result
	}

	tempRB := ringbuffer.New(t.rb.Capacity())
	buf := make([]byte, t.rb.Length())
	t.rb.Bytes(buf)
	tempRB.Write(buf)

	count := int32(0)
	for count < n && !tempRB.IsEmpty() {
		sizeBytes := make([]byte, 4)
		readN, err := tempRB.Read(sizeBytes)
		if err != nil || readN != 4 {
			break
		}
		size := int(binary.LittleEndian.Uint32(sizeBytes))

		data := make([]byte, size)
		readN, err = tempRB.Read(data)
		if err != nil || readN != size {
			break
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			break
		}
		result = append(result, frame)
		count++
	}

	return result
}

func (t *tailImpl) removeOldestFrame() bool {
	if t.rb.IsEmpty() {
		return false
	}

	sizeBytes := make([]byte, 4)
	n, err := t.rb.Read(sizeBytes)
	if err != nil || n != 4 {
		return false
	}
	size := int(binary.LittleEndian.Uint32(sizeBytes))

	if size > 0 {
		skipData := make([]byte, size)
		n, err := t.rb.Read(skipData)
		if err != nil || n != size {
			return false
		}
	}
	return true
}
