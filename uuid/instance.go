package uuid

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofrs/uuid/v5"
)

var ErrNotInstanceID = errors.New("not an instance id")

// InstanceIDs mints time ordered v7 ids naming one running process in
// exported telemetry. All random bits come from the given reader, so a
// constant reader gives reproducible ids.
type InstanceIDs struct {
	gen *uuid.Gen
}

func NewInstanceIDs(randReader io.Reader) *InstanceIDs {
	return &InstanceIDs{
		gen: uuid.NewGenWithOptions(uuid.WithRandomReader(randReader)),
	}
}

func (i *InstanceIDs) New(at time.Time) (string, error) {
	id, err := i.gen.NewV7AtTime(at)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// StartedAt recovers the millisecond an instance id was minted at.
func StartedAt(id string) (time.Time, error) {
	parsed, err := uuid.FromString(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNotInstanceID, err)
	}
	if parsed.Version() != uuid.V7 {
		return time.Time{}, fmt.Errorf("%w: version %d", ErrNotInstanceID, parsed.Version())
	}
	timestamp, err := uuid.TimestampFromV7(parsed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNotInstanceID, err)
	}
	return timestamp.Time()
}
