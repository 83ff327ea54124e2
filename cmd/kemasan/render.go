package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"github.com/vityasyyy/dalam-kemasan/internal/model"
	"github.com/vityasyyy/dalam-kemasan/internal/query"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type column int

const (
	colName column = iota
	colLocation
	colOwner
	colModified
	colOpened
	colSize
	colTrashed
	colPurge
)

var columnTitles = map[column]string{
	colName:     "NAME",
	colLocation: "LOCATION",
	colOwner:    "OWNER",
	colModified: "MODIFIED",
	colOpened:   "OPENED",
	colSize:     "SIZE",
	colTrashed:  "TRASHED",
	colPurge:    "PURGE IN",
}

var (
	columnsDefault = []column{colName, colLocation, colModified, colSize}
	columnsRecent  = []column{colName, colLocation, colOpened, colSize}
	columnsShared  = []column{colName, colOwner, colModified, colSize}
	columnsTrash   = []column{colName, colLocation, colTrashed, colPurge, colSize}
)

// mediaIcons is the display hint per media type. Folders and unknown types
// have their own entries in iconFor.
var mediaIcons = map[model.MediaType]string{
	model.MediaImage:    "🖼",
	model.MediaDocument: "📄",
	model.MediaVideo:    "🎞",
	model.MediaAudio:    "🎵",
	model.MediaArchive:  "🗜",
	model.MediaOther:    "📎",
}

func iconFor(kind model.Kind, mt model.MediaType) string {
	if kind == model.KindFolder {
		return "📁"
	}
	if icon, ok := mediaIcons[mt]; ok {
		return icon
	}
	return mediaIcons[model.MediaOther]
}

func printItems(w io.Writer, items []query.Item, cols []column, now time.Time) error {
	if asJSON {
		if items == nil {
			items = []query.Item{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "nothing here")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	titles := make([]string, 0, len(cols)+1)
	titles = append(titles, "ID")
	for _, c := range cols {
		titles = append(titles, columnTitles[c])
	}
	fmt.Fprintln(tw, strings.Join(titles, "\t"))
	for _, item := range items {
		cells := make([]string, 0, len(cols)+1)
		cells = append(cells, item.ID)
		for _, c := range cols {
			cells = append(cells, cell(item, c, now))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func cell(item query.Item, c column, now time.Time) string {
	switch c {
	case colName:
		name := iconFor(item.Kind, item.MediaType) + " " + item.Name
		if item.Starred {
			name += " ★"
		}
		return name
	case colLocation:
		if item.Location == "" {
			return "/"
		}
		return item.Location
	case colOwner:
		return item.Owner
	case colModified:
		return relTime(item.Modified, now)
	case colOpened:
		if item.LastOpenedAt == nil {
			return "-"
		}
		return relTime(*item.LastOpenedAt, now)
	case colSize:
		if item.SizeBytes == nil {
			return "-"
		}
		return humanize.Bytes(uint64(*item.SizeBytes))
	case colTrashed:
		if item.TrashedAt == nil {
			return "-"
		}
		return relTime(*item.TrashedAt, now)
	case colPurge:
		if item.DaysUntilPurge == nil {
			return "-"
		}
		return purgeIn(*item.DaysUntilPurge)
	}
	return ""
}

func relTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func purgeIn(days int) string {
	if days == 1 {
		return "1 day"
	}
	return strconv.Itoa(days) + " days"
}

func printIDs(w io.Writer, verb string, ids []string) error {
	if asJSON {
		if ids == nil {
			ids = []string{}
		}
		return json.NewEncoder(w).Encode(map[string][]string{"ids": ids})
	}
	_, err := fmt.Fprintf(w, "%s %s\n", verb, humanize.Comma(int64(len(ids)))+" "+plural(len(ids), "entity", "entities"))
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := fmt.Fprintln(w, "  "+id); err != nil {
			return err
		}
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
