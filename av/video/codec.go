package video

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ossrs/go-oryx-lib/avc"
	"github.com/sirupsen/logrus"
	"github.com/yapingcat/gomedia/codec"
)

var (
	// ErrParameterSetsMissing indicates a sequence header was requested before
	// both SPS and PPS were seen.
	ErrParameterSetsMissing = errors.New("parameter sets missing")

	// ErrMalformedParameterSet indicates a parameter-set unit that cannot be used.
	ErrMalformedParameterSet = errors.New("malformed parameter set")
)

// minSPSSize covers the NALU header, profile_idc, constraint flags and level_idc.
const minSPSSize = 4

// Resolution represents video dimensions.
type Resolution struct {
	Width  uint32
	Height uint32
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ParameterSetCache holds the most recent SPS and PPS of one stream.
//
// Both slots hold a complete NALU, header byte included, without any length
// prefix or start code. Version increases whenever either slot changes.
type ParameterSetCache struct {
	sps     []byte
	pps     []byte
	version uint64
}

// Update stores a parameter-set NALU. It reports whether the cache changed.
func (c *ParameterSetCache) Update(nalu *avc.NALU) (bool, error) {
	raw, err := nalu.MarshalBinary()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedParameterSet, err)
	}

	var slot *[]byte
	switch nalu.NALUType {
	case avc.NALUTypeSPS:
		if len(raw) < minSPSSize {
			return false, fmt.Errorf("%w: sps of %d bytes", ErrMalformedParameterSet, len(raw))
		}
		slot = &c.sps
	case avc.NALUTypePPS:
		if len(raw) < 2 {
			return false, fmt.Errorf("%w: pps of %d bytes", ErrMalformedParameterSet, len(raw))
		}
		slot = &c.pps
	default:
		return false, fmt.Errorf("%w: unexpected nalu type %v", ErrMalformedParameterSet, nalu.NALUType)
	}

	if bytes.Equal(*slot, raw) {
		return false, nil
	}
	*slot = append([]byte(nil), raw...)
	c.version++
	return true, nil
}

// Ready reports whether both SPS and PPS are present.
func (c *ParameterSetCache) Ready() bool {
	return len(c.sps) > 0 && len(c.pps) > 0
}

// Version increases on every change of either parameter set.
func (c *ParameterSetCache) Version() uint64 {
	return c.version
}

// SPS returns the cached sequence parameter set.
func (c *ParameterSetCache) SPS() []byte {
	return c.sps
}

// PPS returns the cached picture parameter set.
func (c *ParameterSetCache) PPS() []byte {
	return c.pps
}

// SequenceHeader builds the AVC decoder configuration record used as the
// container header: profile and level from the SPS, 4-byte NALU lengths, and
// the cached SPS and PPS each with a 16-bit length prefix.
func (c *ParameterSetCache) SequenceHeader() ([]byte, error) {
	if !c.Ready() {
		return nil, ErrParameterSetsMissing
	}

	sps := avc.NewNALU()
	if err := sps.UnmarshalBinary(c.sps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedParameterSet, err)
	}
	pps := avc.NewNALU()
	if err := pps.UnmarshalBinary(c.pps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedParameterSet, err)
	}

	record := avc.NewAVCDecoderConfigurationRecord()
	record.AVCProfileIndication = avc.AVCProfile(c.sps[1])
	record.AVCLevelIndication = avc.AVCLevel(c.sps[3])
	record.LengthSizeMinusOne = 3
	record.SequenceParameterSetNALUnits = []*avc.NALU{sps}
	record.PictureParameterSetNALUnits = []*avc.NALU{pps}

	b, err := record.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decoder configuration: %w", err)
	}
	// The record type does not expose profile_compatibility.
	b[2] = c.sps[2]
	return b, nil
}

// Resolution decodes the picture size from the cached SPS.
func (c *ParameterSetCache) Resolution() (Resolution, bool) {
	if len(c.sps) < minSPSSize {
		return Resolution{}, false
	}
	return probeResolution(c.sps)
}

// probeResolution parses an SPS NALU. A truncated SPS makes the bit reader
// run off the end, which is reported as no resolution.
func probeResolution(sps []byte) (res Resolution, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "probeResolution",
				"sps_size": len(sps),
				"panic":    r,
			}).Debug("SPS resolution probe failed")
			res, ok = Resolution{}, false
		}
	}()

	annexB := append([]byte{0x00, 0x00, 0x00, 0x01}, sps...)
	w, h := codec.GetH264Resolution(annexB)
	if w == 0 || h == 0 {
		return Resolution{}, false
	}
	return Resolution{Width: w, Height: h}, true
}
