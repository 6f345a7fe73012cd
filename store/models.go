// Package store contains the GORM-backed SQLite models used to snapshot a
// bank's ledger between test runs.
//
// Database Structure (database file: snapshot.db):
//
//	snapshots/
//	└── snapshot.db
//	    ├── account_records
//	    └── clock_records
package store

import (
	"gorm.io/gorm"
)

// AccountRecord is one ledger account keyed by its base58 address.
type AccountRecord struct {
	gorm.Model
	Address    string `gorm:"uniqueIndex;not null"` // Base58 account address
	Lamports   uint64
	Owner      string `gorm:"index;not null"` // Base58 owner program
	Executable bool
	RentEpoch  uint64
	Data       []byte
}

// ClockRecord is the clock sysvar at the time of the snapshot.
// One record per database.
type ClockRecord struct {
	gorm.Model
	Slot                uint64
	EpochStartTimestamp int64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       int64
}
