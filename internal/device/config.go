package device

import "time"

// Config tunes the timing and smoothing of a Device. Zero values are replaced
// with the defaults from DefaultConfig.
type Config struct {
	// SnapshotDepth is the number of scan snapshots retained by the registry.
	SnapshotDepth int
	// StrengthStrikes is how many unreadable link quality samples in a row
	// keep the previous strength before it drops to unknown.
	StrengthStrikes int

	BringDownPause time.Duration
	BringUpPause   time.Duration
	// AssociationPause is the settle time after setting an essid.
	AssociationPause time.Duration
	// WideAssociationPause replaces AssociationPause for cards that tune to
	// more than 14 frequencies.
	WideAssociationPause time.Duration
	// ScanSettle is the pause after bringing the interface up for a scan.
	ScanSettle time.Duration
	// BestAPPoll is how often an activation waiting for a network rechecks.
	BestAPPoll time.Duration
	// CancelTimeout bounds how long ActivationCancel waits for the worker.
	CancelTimeout time.Duration
	// FindEssidSettle is the pause after deactivating in FindAndUseEssid.
	FindEssidSettle time.Duration
	// FindEssidAttempts is how many times FindAndUseEssid probes for the
	// network.
	FindEssidAttempts int
}

// DefaultConfig returns the settle times that work with most hardware.
func DefaultConfig() Config {
	return Config{
		SnapshotDepth:        3,
		StrengthStrikes:      3,
		BringDownPause:       4 * time.Second,
		BringUpPause:         2 * time.Second,
		AssociationPause:     5 * time.Second,
		WideAssociationPause: 10 * time.Second,
		ScanSettle:           time.Second,
		BestAPPoll:           2 * time.Second,
		CancelTimeout:        30 * time.Second,
		FindEssidSettle:      time.Second,
		FindEssidAttempts:    2,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SnapshotDepth < 2 {
		c.SnapshotDepth = def.SnapshotDepth
	}
	if c.StrengthStrikes <= 0 {
		c.StrengthStrikes = def.StrengthStrikes
	}
	if c.BringDownPause <= 0 {
		c.BringDownPause = def.BringDownPause
	}
	if c.BringUpPause <= 0 {
		c.BringUpPause = def.BringUpPause
	}
	if c.AssociationPause <= 0 {
		c.AssociationPause = def.AssociationPause
	}
	if c.WideAssociationPause <= 0 {
		c.WideAssociationPause = def.WideAssociationPause
	}
	if c.ScanSettle <= 0 {
		c.ScanSettle = def.ScanSettle
	}
	if c.BestAPPoll <= 0 {
		c.BestAPPoll = def.BestAPPoll
	}
	if c.CancelTimeout <= 0 {
		c.CancelTimeout = def.CancelTimeout
	}
	if c.FindEssidSettle <= 0 {
		c.FindEssidSettle = def.FindEssidSettle
	}
	if c.FindEssidAttempts <= 0 {
		c.FindEssidAttempts = def.FindEssidAttempts
	}
	return c
}
