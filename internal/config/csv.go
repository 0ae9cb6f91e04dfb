package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pdproute/internal/model"
)

var defaultColumns = []string{"booking_id", "role", "lat", "lng", "must_be_first"}

// ReadLocationsCSV parses rows of booking_id,role,lat,lng[,must_be_first].
// A header row is optional; when present it may order the columns freely.
func ReadLocationsCSV(r io.Reader) ([]model.LocationIn, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	cols := map[string]int{}
	for i, c := range defaultColumns {
		cols[c] = i
	}
	var out []model.LocationIn
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if line == 1 && isHeader(rec) {
			cols = map[string]int{}
			for i, c := range rec {
				cols[strings.ToLower(strings.TrimSpace(c))] = i
			}
			for _, need := range defaultColumns[:4] {
				if _, ok := cols[need]; !ok {
					return nil, fmt.Errorf("csv header lacks column %q", need)
				}
			}
			continue
		}
		loc, err := parseRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, loc)
	}
	return out, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	return err != nil
}

func parseRow(rec []string, cols map[string]int) (model.LocationIn, error) {
	var loc model.LocationIn
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	id, err := strconv.Atoi(field("booking_id"))
	if err != nil {
		return loc, fmt.Errorf("booking_id: %w", err)
	}
	lat, err := strconv.ParseFloat(field("lat"), 64)
	if err != nil {
		return loc, fmt.Errorf("lat: %w", err)
	}
	lng, err := strconv.ParseFloat(field("lng"), 64)
	if err != nil {
		return loc, fmt.Errorf("lng: %w", err)
	}
	loc = model.LocationIn{BookingID: id, Role: strings.ToLower(field("role")), Location: model.GeoPoint{Lat: lat, Lng: lng}}
	if s := field("must_be_first"); s != "" {
		if loc.MustBeFirst, err = strconv.ParseBool(s); err != nil {
			return loc, fmt.Errorf("must_be_first: %w", err)
		}
	}
	return loc, nil
}
