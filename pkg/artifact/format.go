package artifact

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ajitpratap0/flightprep/pkg/compression"
	"github.com/ajitpratap0/flightprep/pkg/json"
	"github.com/ajitpratap0/flightprep/pkg/table"
)

// File layout:
//
//	magic | block 0 | block 1 | ... | footer (JSON) | footer length (uint32 LE) | magic
//
// Each block is one column serialized as a single-record Arrow IPC stream
// and compressed with the codec named in the footer.
const (
	magic         = "FPA1"
	formatVersion = 1
	trailerSize   = 4 + len(magic)
	// Extension is the file suffix of artifacts
	Extension = ".fpa"
)

// ColumnInfo describes one stored column. Width is set for integer and
// float columns only.
type ColumnInfo struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Width      string `json:"width,omitempty"`
	Offset     int64  `json:"offset"`
	Length     int64  `json:"length"`
	RawLength  int64  `json:"raw_length"`
	Rows       int    `json:"rows"`
	Categories int    `json:"categories,omitempty"`
	Codec      string `json:"codec"`
}

// Footer is the self-description stored at the end of every artifact
type Footer struct {
	Version   int          `json:"version"`
	Partition string       `json:"partition"`
	Rows      int          `json:"rows"`
	Columns   []ColumnInfo `json:"columns"`
}

// Column looks up a column by name
func (f *Footer) Column(name string) (ColumnInfo, bool) {
	for _, c := range f.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

func writeTrailer(w io.Writer, f *Footer) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode footer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(data)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	_, err = io.WriteString(w, magic)
	return err
}

// readFooter validates both magics and decodes the footer of an artifact
// of the given total size.
func readFooter(r io.ReaderAt, size int64) (*Footer, error) {
	if size < int64(len(magic)+trailerSize) {
		return nil, fmt.Errorf("file too small (%d bytes)", size)
	}

	head := make([]byte, len(magic))
	if _, err := r.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(head) != magic {
		return nil, fmt.Errorf("bad header magic %q", head)
	}

	trailer := make([]byte, trailerSize)
	if _, err := r.ReadAt(trailer, size-int64(trailerSize)); err != nil {
		return nil, fmt.Errorf("read trailer: %w", err)
	}
	if string(trailer[4:]) != magic {
		return nil, fmt.Errorf("bad trailer magic %q", trailer[4:])
	}

	footerLen := int64(binary.LittleEndian.Uint32(trailer[:4]))
	footerStart := size - int64(trailerSize) - footerLen
	if footerStart < int64(len(magic)) {
		return nil, fmt.Errorf("footer length %d exceeds file", footerLen)
	}

	data := make([]byte, footerLen)
	if _, err := r.ReadAt(data, footerStart); err != nil {
		return nil, fmt.Errorf("read footer: %w", err)
	}
	var f Footer
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode footer: %w", err)
	}
	if f.Version != formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", f.Version)
	}

	for _, c := range f.Columns {
		if c.Offset < int64(len(magic)) || c.Length < 0 || c.Offset+c.Length > footerStart {
			return nil, fmt.Errorf("column %q block [%d, +%d) outside data region", c.Name, c.Offset, c.Length)
		}
		if c.Rows != f.Rows {
			return nil, fmt.Errorf("column %q has %d rows, artifact has %d", c.Name, c.Rows, f.Rows)
		}
		if _, err := table.ParseKind(c.Kind); err != nil {
			return nil, err
		}
		if _, err := compression.ParseAlgorithm(c.Codec); err != nil {
			return nil, err
		}
	}
	return &f, nil
}
