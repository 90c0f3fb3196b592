// Package export renders visit detail rows for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Header is the fixed column list of a CSV export.
var Header = []string{
	"Timestamp",
	"Country",
	"City",
	"Browser",
	"OS",
	"Device Type",
	"Referrer Domain",
	"UTM Source",
	"UTM Medium",
	"UTM Campaign",
	"UTM Term",
	"UTM Content",
	"Is Bot",
}

// Source feeds visits to fn in export order and stops at the first error.
type Source func(fn func(domain.VisitDetail) error) error

func withVersion(name, version string) string {
	if version == "" {
		return name
	}
	return name + " " + version
}

func Row(v domain.VisitDetail) []string {
	return []string{
		v.CreatedAt.UTC().Format(time.RFC3339),
		v.Country,
		v.City,
		withVersion(v.Browser, v.BrowserVersion),
		withVersion(v.OS, v.OSVersion),
		v.DeviceType,
		v.ReferrerDomain,
		v.UTMSource,
		v.UTMMedium,
		v.UTMCampaign,
		v.UTMTerm,
		v.UTMContent,
		strconv.FormatBool(v.IsBot),
	}
}

func WriteCSV(w io.Writer, src Source) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}

	err := src(func(v domain.VisitDetail) error {
		return cw.Write(Row(v))
	})
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

type linkMeta struct {
	ID        int64     `json:"id"`
	Address   string    `json:"address"`
	Target    string    `json:"target"`
	CreatedAt time.Time `json:"created_at"`
}

// WriteJSON streams {"link": ..., "visits": [...], "exported_at": ...}
// without holding every visit in memory.
func WriteJSON(w io.Writer, link *domain.Link, src Source, exportedAt time.Time) error {
	meta, err := json.Marshal(linkMeta{
		ID:        link.ID,
		Address:   link.Address,
		Target:    link.Target,
		CreatedAt: link.CreatedAt,
	})
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, `{"link":`); err != nil {
		return err
	}
	if _, err := w.Write(meta); err != nil {
		return err
	}
	if _, err := io.WriteString(w, `,"visits":[`); err != nil {
		return err
	}

	first := true
	err = src(func(v domain.VisitDetail) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		first = false
		_, err = w.Write(data)
		return err
	})
	if err != nil {
		return err
	}

	stamp, err := json.Marshal(exportedAt.UTC())
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, `],"exported_at":`); err != nil {
		return err
	}
	if _, err := w.Write(stamp); err != nil {
		return err
	}
	_, err = io.WriteString(w, "}")
	return err
}
