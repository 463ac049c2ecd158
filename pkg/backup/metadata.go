package backup

import (
	"bytes"
	"fmt"
	"time"

	"github.com/blacktop/go-plist"
	"github.com/spf13/cast"
)

// Metadata is the per-file metadata embedded in a manifest row. The
// blob is a keyed-archive binary plist; newer backups hold the real
// dictionary at $objects[1], older ones store it flat.
type Metadata struct {
	Size         int64     `json:"size"`
	Mode         int64     `json:"mode"`
	Flags        int64     `json:"flags"`
	LastModified time.Time `json:"last_modified,omitzero"`
}

func decodeMetadata(blob []byte) (Metadata, error) {
	var raw map[string]any
	if err := plist.NewDecoder(bytes.NewReader(blob)).Decode(&raw); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode metadata plist: %w", err)
	}

	dict := raw
	if objs, ok := raw["$objects"].([]any); ok {
		if len(objs) < 2 {
			return Metadata{}, fmt.Errorf("keyed archive has no object at index 1")
		}
		d, ok := objs[1].(map[string]any)
		if !ok {
			return Metadata{}, fmt.Errorf("keyed archive object 1 is %T, not a dictionary", objs[1])
		}
		dict = d
	}

	md := Metadata{
		Size:  cast.ToInt64(dict["Size"]),
		Mode:  cast.ToInt64(dict["Mode"]),
		Flags: cast.ToInt64(dict["Flags"]),
	}
	if mtime := cast.ToInt64(dict["LastModified"]); mtime > 0 {
		md.LastModified = time.Unix(mtime, 0)
	}
	return md, nil
}
