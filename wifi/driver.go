package wifi

import (
	"context"
	"net"
)

// SupportLevel describes how well a driver supports the device.
type SupportLevel int

const (
	SupportUnsupported SupportLevel = iota
	// SupportNoScan drivers can associate but not scan, and are probed by
	// trying each known network in turn.
	SupportNoScan
	SupportFull
)

// Capabilities is reported by a Driver once per device.
type Capabilities struct {
	Support SupportLevel
	// NumFrequencies is the number of channels the card can tune to. Cards
	// with many channels take longer to find a network after an essid change.
	NumFrequencies int
	// Frequencies lists the tunable channels in MHz, if known.
	Frequencies []uint
	// MaxQuality is the top of the card's link quality scale.
	MaxQuality int
}

// CanScan reports whether the driver supports hardware scanning.
func (c Capabilities) CanScan() bool {
	return c.Support == SupportFull
}

// Quality is a vendor-neutral link quality sample.
type Quality struct {
	// Qual is the link quality on a 0..MaxQual scale. 0 when unknown.
	Qual    int
	MaxQual int
	// Level and Noise are in dBm. 0 when unknown.
	Level int
	Noise int
}

// RawAP is one entry of a driver scan, before it is turned into an AccessPoint.
type RawAP struct {
	// Essid is empty when the driver reported no essid, a blank one or the
	// "<hidden>" placeholder.
	Essid   string
	Address net.HardwareAddr
	Mode    Mode
	// KeyDisabled is set when the network advertises no encryption.
	KeyDisabled bool
	Quality     Quality
	Frequency   uint // MHz
}

// Driver is the hardware layer of a single wireless interface.
//
// Settings are staged in the card and take effect when a non-blank essid is
// set, mirroring how wireless extension drivers associate. Setting a blank
// essid disassociates.
type Driver interface {
	// Interface returns the kernel interface name, ie. wlan0.
	Interface() string
	Capabilities(ctx context.Context) (Capabilities, error)

	SetUp(ctx context.Context, up bool) error
	IsUp(ctx context.Context) (bool, error)

	// Scan returns the visible networks, or ErrScanNotReady if the card
	// needs more time.
	Scan(ctx context.Context) ([]RawAP, error)

	Mode(ctx context.Context) (Mode, error)
	SetMode(ctx context.Context, mode Mode) error
	Frequency(ctx context.Context) (uint, error)
	SetFrequency(ctx context.Context, freq uint) error
	// Bitrate is in kb/s, 0 means automatic.
	Bitrate(ctx context.Context) (int, error)
	SetBitrate(ctx context.Context, kbps int) error
	Essid(ctx context.Context) (string, error)
	SetEssid(ctx context.Context, essid string) error
	// SetKey sets hex key material. An empty key disables encryption.
	SetKey(ctx context.Context, key string, auth AuthMethod) error

	// Associated reports whether the card is associated with some network.
	Associated(ctx context.Context) (bool, error)
	// APAddress is the hardware address of the associated access point.
	APAddress(ctx context.Context) (net.HardwareAddr, error)
	LinkQuality(ctx context.Context) (Quality, error)
}

// QualityToPercent converts a quality sample into a 0-100 strength, or -1 if
// the sample carries no usable information.
func QualityToPercent(q Quality, maxQual int) int {
	if q.MaxQual > 0 {
		maxQual = q.MaxQual
	}
	if q.Qual > 0 && maxQual > 0 {
		return clampPercent(100 * q.Qual / maxQual)
	}
	if q.Level < 0 {
		return rssiToStrength(q.Level)
	}
	return -1
}

func rssiToStrength(rssi int) int {
	if rssi >= 0 || rssi <= -100 {
		return 0
	}
	return clampPercent(2 * (rssi + 100))
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ChannelToFrequency returns the 2.4GHz or 5GHz center frequency of a channel.
func ChannelToFrequency(channel int) uint {
	switch {
	case channel == 14:
		return 2484
	case channel >= 1 && channel <= 13:
		return uint(2407 + 5*channel)
	case channel >= 32 && channel <= 177:
		return uint(5000 + 5*channel)
	}
	return 0
}

// FrequencyToChannel is the inverse of ChannelToFrequency, 0 if unknown.
func FrequencyToChannel(freq uint) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq <= 2472:
		return int(freq-2407) / 5
	case freq >= 5160 && freq <= 5885:
		return int(freq-5000) / 5
	}
	return 0
}
