package crystaldbg

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/Luminiscental/Crystal/vm"
)

// SnapshotDoc is the CBOR-serialized envelope written to a snapshot file:
// a stack snapshot tagged with a run identifier, the checksum of the
// image that produced it, and when it was taken.
type SnapshotDoc struct {
	RunID          uuid.UUID `cbor:"run_id"`
	ImageChecksum  uint64    `cbor:"image_checksum"`
	TakenAt        time.Time `cbor:"taken_at"`
	IP             int       `cbor:"ip"`
	SP             int       `cbor:"sp"`
	FP             int       `cbor:"fp"`
	Values         []string  `cbor:"values"`
}

// EncodeSnapshot builds a SnapshotDoc from a live VM snapshot and its
// source image, returning the CBOR-encoded bytes ready to write to disk.
func EncodeSnapshot(runID uuid.UUID, image []byte, snap vm.StackSnapshot, takenAt time.Time) ([]byte, error) {
	doc := SnapshotDoc{
		RunID:         runID,
		ImageChecksum: vm.ImageChecksum(image),
		TakenAt:       takenAt,
		IP:            snap.IP,
		SP:            snap.SP,
		FP:            snap.FP,
		Values:        snap.Values,
	}
	return cbor.Marshal(doc)
}

// DescribeSnapshot renders a one-line, human-readable summary of an
// encoded snapshot's size and stack depth, used for CLI progress output.
func DescribeSnapshot(encoded []byte, snap vm.StackSnapshot) string {
	return fmt.Sprintf("snapshot: %s, %d stack values", humanize.Bytes(uint64(len(encoded))), len(snap.Values))
}
