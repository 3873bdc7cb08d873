// Package snapshot exports and imports the full account store as a single
// zstd-compressed stream.
//
// Stream layout (inside the zstd frame):
//
//	magic          4 bytes  "X1RS"
//	version        4 bytes  little-endian
//	accounts_count 8 bytes  little-endian
//	entries        accounts_count times:
//	    pubkey     32 bytes
//	    length      4 bytes  little-endian
//	    account    length bytes, accounts.SerializeAccount encoding
//	lamports_total 8 bytes  little-endian
//	digest        32 bytes  BLAKE2b-256 over every entry byte
//
// Entries are written in the store's iteration order. A pubkey appears at most
// once and nothing may follow the digest.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"hash"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/fortiblox/x1-rewards/pkg/accounts"
	"github.com/fortiblox/x1-rewards/pkg/metrics"
	"github.com/fortiblox/x1-rewards/pkg/types"
)

// Version is the current snapshot format version.
const Version uint32 = 1

var magic = [4]byte{'X', '1', 'R', 'S'}

// maxEntrySize bounds a single serialized account so a corrupt length cannot
// force a huge allocation.
const maxEntrySize = 16 * 1024 * 1024

var (
	ErrInvalidSnapshot        = errors.New("invalid snapshot")
	ErrUnsupportedVersion     = errors.New("unsupported snapshot version")
	ErrDigestMismatch         = errors.New("snapshot digest mismatch")
	ErrStoreNotEmpty          = errors.New("account store is not empty")
	ErrConcurrentModification = errors.New("account store changed during export")
)

// Manifest summarizes a snapshot.
type Manifest struct {
	Version       uint32
	AccountsCount uint64
	LamportsTotal uint64
	Digest        [32]byte
}

// Export writes every account in db to w. The store must not be written to
// while the export runs.
func Export(db accounts.AccountsDB, w io.Writer) (*Manifest, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd encoder")
	}

	manifest := &Manifest{Version: Version, AccountsCount: db.GetAccountsCount()}
	digest := newDigest()
	out := bufio.NewWriter(enc)

	header := make([]byte, 16)
	copy(header[0:4], magic[:])
	binary.LittleEndian.PutUint32(header[4:8], manifest.Version)
	binary.LittleEndian.PutUint64(header[8:16], manifest.AccountsCount)
	if _, err := out.Write(header); err != nil {
		enc.Close()
		return nil, errors.Wrap(err, "failed to write snapshot header")
	}

	var written uint64
	entry := io.MultiWriter(out, digest)
	err = db.ForEach(func(pubkey types.Pubkey, account *types.Account) error {
		data, err := accounts.SerializeAccount(account)
		if err != nil {
			return errors.Wrapf(err, "failed to serialize account %s", pubkey)
		}
		var length [4]byte
		binary.LittleEndian.PutUint32(length[:], uint32(len(data)))
		for _, part := range [][]byte{pubkey[:], length[:], data} {
			if _, err := entry.Write(part); err != nil {
				return errors.Wrap(err, "failed to write snapshot entry")
			}
		}
		manifest.LamportsTotal += uint64(account.Lamports)
		written++
		return nil
	})
	if err != nil {
		enc.Close()
		return nil, err
	}
	if written != manifest.AccountsCount {
		enc.Close()
		return nil, errors.Wrapf(ErrConcurrentModification, "header says %d accounts, wrote %d", manifest.AccountsCount, written)
	}

	copy(manifest.Digest[:], digest.Sum(nil))
	trailer := make([]byte, 8+32)
	binary.LittleEndian.PutUint64(trailer[0:8], manifest.LamportsTotal)
	copy(trailer[8:], manifest.Digest[:])
	if _, err := out.Write(trailer); err != nil {
		enc.Close()
		return nil, errors.Wrap(err, "failed to write snapshot trailer")
	}
	if err := out.Flush(); err != nil {
		enc.Close()
		return nil, errors.Wrap(err, "failed to flush snapshot")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finish zstd stream")
	}

	metrics.SnapshotAccounts.WithLabelValues("export").Add(float64(written))
	logrus.StandardLogger().WithField("type", "snapshot").WithFields(logrus.Fields{
		"accounts": written,
		"lamports": manifest.LamportsTotal,
	}).Info("snapshot exported")
	return manifest, nil
}

// Verify reads a snapshot from r and checks its structure, totals and digest
// without loading it anywhere.
func Verify(r io.Reader) (*Manifest, error) {
	manifest, _, err := read(r, false)
	return manifest, err
}

// Import loads a snapshot from r into db, which must be empty. Nothing is
// written unless the whole snapshot verifies; the accounts are then
// committed in one batch.
func Import(r io.Reader, db accounts.AccountsDB) (*Manifest, error) {
	if db.GetAccountsCount() != 0 {
		return nil, ErrStoreNotEmpty
	}
	manifest, batch, err := read(r, true)
	if err != nil {
		return nil, err
	}
	if err := db.Commit(batch); err != nil {
		return nil, errors.Wrap(err, "failed to commit snapshot accounts")
	}

	metrics.SnapshotAccounts.WithLabelValues("import").Add(float64(len(batch)))
	logrus.StandardLogger().WithField("type", "snapshot").WithFields(logrus.Fields{
		"accounts": len(batch),
		"lamports": manifest.LamportsTotal,
	}).Info("snapshot imported")
	return manifest, nil
}

func read(r io.Reader, keep bool) (*Manifest, map[types.Pubkey]*types.Account, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create zstd decoder")
	}
	defer dec.Close()
	in := bufio.NewReader(dec)

	header := make([]byte, 16)
	if _, err := io.ReadFull(in, header); err != nil {
		return nil, nil, errors.Wrapf(ErrInvalidSnapshot, "header: %v", err)
	}
	if [4]byte(header[0:4]) != magic {
		return nil, nil, errors.Wrap(ErrInvalidSnapshot, "bad magic")
	}
	manifest := &Manifest{
		Version:       binary.LittleEndian.Uint32(header[4:8]),
		AccountsCount: binary.LittleEndian.Uint64(header[8:16]),
	}
	if manifest.Version != Version {
		return nil, nil, errors.Wrapf(ErrUnsupportedVersion, "%d", manifest.Version)
	}

	var batch map[types.Pubkey]*types.Account
	if keep {
		batch = make(map[types.Pubkey]*types.Account)
	}
	digest := newDigest()
	entry := io.TeeReader(in, digest)
	var lamports uint64
	seen := make(map[types.Pubkey]struct{})

	for i := uint64(0); i < manifest.AccountsCount; i++ {
		var prefix [36]byte
		if _, err := io.ReadFull(entry, prefix[:]); err != nil {
			return nil, nil, errors.Wrapf(ErrInvalidSnapshot, "entry %d: %v", i, err)
		}
		pubkey := types.Pubkey(prefix[0:32])
		length := binary.LittleEndian.Uint32(prefix[32:36])
		if length > maxEntrySize {
			return nil, nil, errors.Wrapf(ErrInvalidSnapshot, "entry %d: %d bytes", i, length)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(entry, data); err != nil {
			return nil, nil, errors.Wrapf(ErrInvalidSnapshot, "entry %d: %v", i, err)
		}
		account, err := accounts.DeserializeAccount(data)
		if err != nil {
			return nil, nil, errors.Wrapf(ErrInvalidSnapshot, "account %s: %v", pubkey, err)
		}
		if _, dup := seen[pubkey]; dup {
			return nil, nil, errors.Wrapf(ErrInvalidSnapshot, "duplicate account %s", pubkey)
		}
		seen[pubkey] = struct{}{}
		lamports += uint64(account.Lamports)
		if keep {
			batch[pubkey] = account
		}
	}

	trailer := make([]byte, 8+32)
	if _, err := io.ReadFull(in, trailer); err != nil {
		return nil, nil, errors.Wrapf(ErrInvalidSnapshot, "trailer: %v", err)
	}
	manifest.LamportsTotal = binary.LittleEndian.Uint64(trailer[0:8])
	copy(manifest.Digest[:], trailer[8:])
	if _, err := in.ReadByte(); err != io.EOF {
		return nil, nil, errors.Wrap(ErrInvalidSnapshot, "data after trailer")
	}

	if lamports != manifest.LamportsTotal {
		return nil, nil, errors.Wrapf(ErrInvalidSnapshot, "lamports total %d, entries hold %d", manifest.LamportsTotal, lamports)
	}
	if [32]byte(digest.Sum(nil)) != manifest.Digest {
		return nil, nil, ErrDigestMismatch
	}
	return manifest, batch, nil
}

func newDigest() hash.Hash {
	// New256 only fails for keys longer than 64 bytes.
	h, _ := blake2b.New256(nil)
	return h
}

// ExportFile writes a snapshot of db to path.
func ExportFile(db accounts.AccountsDB, path string) (*Manifest, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create snapshot file")
	}
	manifest, err := Export(db, file)
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close snapshot file")
	}
	return manifest, nil
}

// ImportFile loads the snapshot at path into db.
func ImportFile(path string, db accounts.AccountsDB) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open snapshot file")
	}
	defer file.Close()
	return Import(file, db)
}
