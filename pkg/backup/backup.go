// Package backup reads iOS backup directories: the Info/Manifest/Status
// plists, the Manifest.db file index and the content-addressed blob
// store underneath it.
package backup

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/go-plist"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Info is the Info.plist at the top of a backup directory.
type Info struct {
	DeviceName       string    `plist:"Device Name,omitempty" json:"device_name,omitempty"`
	DisplayName      string    `plist:"Display Name,omitempty" json:"display_name,omitempty"`
	ProductVersion   string    `plist:"Product Version,omitempty" json:"product_version,omitempty"`
	BuildVersion     string    `plist:"Build Version,omitempty" json:"build_version,omitempty"`
	ProductType      string    `plist:"Product Type,omitempty" json:"product_type,omitempty"`
	SerialNumber     string    `plist:"Serial Number,omitempty" json:"serial_number,omitempty"`
	TargetIdentifier string    `plist:"Target Identifier,omitempty" json:"target_identifier,omitempty"`
	UniqueID         string    `plist:"Unique Identifier,omitempty" json:"unique_identifier,omitempty"`
	LastBackupDate   time.Time `plist:"Last Backup Date,omitempty" json:"last_backup_date,omitempty"`
}

// UDID returns the device identifier the backup belongs to.
func (i *Info) UDID() string {
	if i.TargetIdentifier != "" {
		return i.TargetIdentifier
	}
	return i.UniqueID
}

// Manifest is the Manifest.plist at the top of a backup directory.
type Manifest struct {
	Version       string    `plist:"Version,omitempty" json:"version,omitempty"`
	Date          time.Time `plist:"Date,omitempty" json:"date,omitempty"`
	IsEncrypted   bool      `plist:"IsEncrypted" json:"is_encrypted"`
	WasPasscode   bool      `plist:"WasPasscodeSet" json:"was_passcode_set"`
	SystemDomains string    `plist:"SystemDomainsVersion,omitempty" json:"system_domains_version,omitempty"`
	Lockdown      *Lockdown `plist:"Lockdown,omitempty" json:"lockdown,omitempty"`
}

// Lockdown is the device identity block embedded in Manifest.plist.
type Lockdown struct {
	DeviceName     string `plist:"DeviceName,omitempty" json:"device_name,omitempty"`
	ProductVersion string `plist:"ProductVersion,omitempty" json:"product_version,omitempty"`
	BuildVersion   string `plist:"BuildVersion,omitempty" json:"build_version,omitempty"`
	ProductType    string `plist:"ProductType,omitempty" json:"product_type,omitempty"`
	SerialNumber   string `plist:"SerialNumber,omitempty" json:"serial_number,omitempty"`
	UniqueDeviceID string `plist:"UniqueDeviceID,omitempty" json:"unique_device_id,omitempty"`
}

// Status is the Status.plist at the top of a backup directory.
type Status struct {
	UUID         string    `plist:"UUID,omitempty" json:"uuid,omitempty"`
	Date         time.Time `plist:"Date,omitempty" json:"date,omitempty"`
	IsFullBackup bool      `plist:"IsFullBackup" json:"is_full_backup"`
	SnapshotSt   string    `plist:"SnapshotState,omitempty" json:"snapshot_state,omitempty"`
	BackupState  string    `plist:"BackupState,omitempty" json:"backup_state,omitempty"`
	Version      string    `plist:"Version,omitempty" json:"version,omitempty"`
}

// Backup is a read-only handle on one backup directory. It is never
// mutated after Open and is safe for concurrent readers.
type Backup struct {
	Path     string
	Info     *Info
	Manifest *Manifest
	Status   *Status

	idxOnce sync.Once
	idx     *gorm.DB
	idxErr  error
}

// minVersion is the oldest iOS that writes a Manifest.db index.
var minVersion = version.Must(version.NewVersion("10.0"))

// Open validates dir as an iOS backup and reads its top-level plists.
// The manifest index is opened lazily on first query.
func Open(dir string) (*Backup, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.Wrap(err, "backup path does not exist")
	}

	b := &Backup{Path: dir}

	mdata, err := os.ReadFile(filepath.Join(dir, "Manifest.plist"))
	if err != nil {
		return nil, &StoreCorruptError{Path: dir, Err: fmt.Errorf("Manifest.plist not found: %w", err)}
	}
	b.Manifest = &Manifest{}
	if err := plist.NewDecoder(bytes.NewReader(mdata)).Decode(b.Manifest); err != nil {
		return nil, &StoreCorruptError{Path: dir, Err: fmt.Errorf("failed to parse Manifest.plist: %w", err)}
	}

	if _, err := os.Stat(filepath.Join(dir, "Manifest.db")); err != nil {
		if _, err := os.Stat(filepath.Join(dir, "Manifest.mbdb")); err == nil {
			return nil, &StoreCorruptError{Path: dir,
				Err: fmt.Errorf("legacy Manifest.mbdb backups are not supported (requires iOS %s or later)", minVersion)}
		}
		return nil, &StoreCorruptError{Path: dir, Err: fmt.Errorf("Manifest.db not found: %w", err)}
	}

	if idata, err := os.ReadFile(filepath.Join(dir, "Info.plist")); err == nil {
		b.Info = &Info{}
		if err := plist.NewDecoder(bytes.NewReader(idata)).Decode(b.Info); err != nil {
			log.WithError(err).Debug("failed to parse Info.plist")
			b.Info = &Info{}
		}
	} else {
		b.Info = &Info{}
	}

	if sdata, err := os.ReadFile(filepath.Join(dir, "Status.plist")); err == nil {
		b.Status = &Status{}
		if err := plist.NewDecoder(bytes.NewReader(sdata)).Decode(b.Status); err != nil {
			log.WithError(err).Debug("failed to parse Status.plist")
			b.Status = nil
		}
	}

	if v, err := b.Version(); err == nil && v.LessThan(minVersion) {
		log.WithField("version", v).Warn("backup claims a pre-Manifest.db iOS version")
	}
	if b.Manifest.IsEncrypted {
		log.Warn("backup is encrypted; file contents will not be extractable")
	}

	return b, nil
}

// IsEncrypted reports whether the backup's content blobs are encrypted.
func (b *Backup) IsEncrypted() bool {
	return b.Manifest.IsEncrypted
}

// Version parses the backup's iOS product version.
func (b *Backup) Version() (*version.Version, error) {
	pv := b.Info.ProductVersion
	if pv == "" && b.Manifest.Lockdown != nil {
		pv = b.Manifest.Lockdown.ProductVersion
	}
	if pv == "" {
		return nil, fmt.Errorf("no product version recorded in backup")
	}
	return version.NewVersion(pv)
}

// Size walks the backup directory and totals the on-disk bytes.
func (b *Backup) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(b.Path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
		}
		return nil
	})
	return total, err
}

func (b *Backup) String() string {
	var out string
	out += fmt.Sprintf("Name:        %s\n", b.Info.DeviceName)
	out += fmt.Sprintf("UDID:        %s\n", b.Info.UDID())
	out += fmt.Sprintf("Product:     %s\n", b.Info.ProductType)
	out += fmt.Sprintf("iOS:         %s (%s)\n", b.Info.ProductVersion, b.Info.BuildVersion)
	out += fmt.Sprintf("Serial:      %s\n", b.Info.SerialNumber)
	if !b.Info.LastBackupDate.IsZero() {
		out += fmt.Sprintf("Last Backup: %s\n", b.Info.LastBackupDate.Format("2006-01-02 15:04:05"))
	}
	out += fmt.Sprintf("Encrypted:   %t\n", b.Manifest.IsEncrypted)
	if b.Status != nil {
		out += fmt.Sprintf("Full Backup: %t\n", b.Status.IsFullBackup)
	}
	if sz, err := b.Size(); err == nil {
		out += fmt.Sprintf("Size:        %s\n", humanize.Bytes(uint64(sz)))
	}
	return out
}
