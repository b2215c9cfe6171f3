package audio

// G.711 mu-law constants.
const (
	muLawBias = 0x84
	muLawClip = 32635
)

// muLawExponentTable maps the top byte of a biased magnitude to its segment.
var muLawExponentTable = [256]int{
	0, 0, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 3, 3, 3, 3,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
}

// MuLawEncode compresses one 16-bit PCM sample to a mu-law byte.
// It is total over int16; magnitudes above 32635 are clipped.
func MuLawEncode(sample int16) byte {
	s := int(sample)
	sign := (s >> 8) & 0x80
	if sign != 0 {
		s = -s
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := muLawExponentTable[(s>>7)&0xFF]
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

// MuLawDecode expands a mu-law byte to the centre of its quantization interval.
func MuLawDecode(code byte) int16 {
	u := ^code
	exponent := uint((u >> 4) & 0x07)
	mantissa := int(u & 0x0F)

	magnitude := ((mantissa << 3) + muLawBias) << exponent
	magnitude -= muLawBias
	if u&0x80 != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// MuLawEncodeSamples encodes a buffer, one byte per sample.
func MuLawEncodeSamples(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = MuLawEncode(s)
	}
	return out
}

// MuLawDecodeBytes expands a mu-law byte stream to PCM samples.
func MuLawDecodeBytes(codes []byte) []int16 {
	out := make([]int16, len(codes))
	for i, c := range codes {
		out[i] = MuLawDecode(c)
	}
	return out
}

// Encoder turns a PCM frame into its wire representation.
type Encoder interface {
	// Encode converts PCM samples to encoded audio data
	Encode(pcm []int16) ([]byte, error)
	// Name identifies the encoding in configuration and logs
	Name() string
}

// MuLawCodec is the G.711 mu-law Encoder used for streamed audio.
type MuLawCodec struct{}

// Encode implements Encoder.
func (MuLawCodec) Encode(pcm []int16) ([]byte, error) {
	return MuLawEncodeSamples(pcm), nil
}

// Decode expands a mu-law frame back to PCM.
func (MuLawCodec) Decode(data []byte) ([]int16, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPacket
	}
	return MuLawDecodeBytes(data), nil
}

// Name implements Encoder.
func (MuLawCodec) Name() string {
	return "mulaw"
}

// PCMEncoder passes samples through as 16-bit little-endian PCM.
type PCMEncoder struct{}

// Encode implements Encoder.
func (PCMEncoder) Encode(pcm []int16) ([]byte, error) {
	data := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data, nil
}

// Name implements Encoder.
func (PCMEncoder) Name() string {
	return "pcm"
}

// NewEncoder returns the encoder registered under name.
func NewEncoder(name string) (Encoder, bool) {
	switch name {
	case "", "mulaw":
		return MuLawCodec{}, true
	case "pcm":
		return PCMEncoder{}, true
	default:
		return nil, false
	}
}
