package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"dealerhub_backend/internal/ingest/coerce"
	"dealerhub_backend/internal/ingest/transport"
	"dealerhub_backend/platform/apperr"
	"dealerhub_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	opPreview = "ingest.preview"

	previewSampleRows = 5
	previewScanRows   = 200
)

// FileArchiver stores the raw source file so a later upload can reference it.
// Implemented by the object storage adapter.
type FileArchiver interface {
	ArchiveSourceFile(ctx context.Context, objectName, fileName string, size int64, reader io.Reader) error
}

// Previewer parses an uploaded CSV, detects its columns, votes on column
// types, and proposes a field mapping for the realtime upload protocol.
type Previewer struct {
	archiver FileArchiver
	log      *logger.Logger
}

func NewPreviewer(archiver FileArchiver, log *logger.Logger) *Previewer {
	return &Previewer{archiver: archiver, log: log}
}

// Preview reads the whole file once: the raw bytes go to the archive while
// the CSV reader builds the analysis. fileName is used for the archive
// object's metadata only.
func (p *Previewer) Preview(ctx context.Context, fileName string, size int64, file io.Reader) (transport.PreviewResponse, error) {
	sourceFileID := ""
	reader := file
	if p.archiver != nil {
		sourceFileID = uuid.NewString()
		pr, pw := io.Pipe()
		reader = io.TeeReader(file, pw)
		var g errgroup.Group
		g.Go(func() error {
			return p.archiver.ArchiveSourceFile(ctx, sourceFileID, fileName, size, pr)
		})
		defer func() {
			pw.Close()
			if err := g.Wait(); err != nil {
				p.log.Error("source file archival failed", "source_file_id", sourceFileID, "error", err)
			}
		}()
	}

	resp, err := analyzeCSV(reader)
	if err != nil {
		return transport.PreviewResponse{}, err
	}
	resp.SourceFileID = sourceFileID
	return resp, nil
}

func analyzeCSV(r io.Reader) (transport.PreviewResponse, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return transport.PreviewResponse{}, apperr.Validation("file is empty").WithOp(opPreview)
		}
		return transport.PreviewResponse{}, apperr.Wrap(apperr.KindBadRequest, "failed to parse CSV header", err).WithOp(opPreview)
	}

	fields := make([]string, 0, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		fields = append(fields, name)
	}

	votes := make([]typeVote, len(fields))
	sampleRows := make([]map[string]any, 0, previewSampleRows)
	totalRows := 0

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return transport.PreviewResponse{}, apperr.Wrap(apperr.KindBadRequest, fmt.Sprintf("malformed CSV near row %d", totalRows+2), err).WithOp(opPreview)
		}
		totalRows++

		if totalRows <= previewScanRows {
			for i := range fields {
				value := ""
				if i < len(record) {
					value = strings.TrimSpace(record[i])
				}
				votes[i].observe(value)
			}
		}
		if len(sampleRows) < previewSampleRows {
			row := make(map[string]any, len(fields))
			for i, field := range fields {
				if i < len(record) {
					row[field] = record[i]
				} else {
					row[field] = ""
				}
			}
			sampleRows = append(sampleRows, row)
		}
	}

	if totalRows == 0 {
		return transport.PreviewResponse{}, apperr.Validation("file has a header but no data rows").WithOp(opPreview)
	}

	analysis := make([]transport.FieldAnalysis, 0, len(fields))
	hints := make(map[string]string, len(fields))
	for i, field := range fields {
		fa := votes[i].result(field)
		analysis = append(analysis, fa)
		hints[field] = fa.DetectedType
	}

	return transport.PreviewResponse{
		DetectedFields:   fields,
		SampleRows:       sampleRows,
		TotalRows:        totalRows,
		FieldAnalysis:    analysis,
		SuggestedMapping: suggestMapping(fields),
		SuggestedHints:   hints,
	}, nil
}

// typeVote tallies what each non-empty value in a column parses as. The
// majority type wins; a column that never parses as anything stays a string.
type typeVote struct {
	total   int
	empty   int
	integer int
	number  int
	boolean int
	date    int
	samples []string
}

func (v *typeVote) observe(value string) {
	v.total++
	if value == "" {
		v.empty++
		return
	}
	if len(v.samples) < previewSampleRows {
		v.samples = append(v.samples, value)
	}
	if _, ok := coerce.Convert(value, coerce.TypeDate).(time.Time); ok {
		v.date++
	}
	if num, ok := coerce.Convert(value, coerce.TypeNumber).(float64); ok {
		v.number++
		if num == math.Trunc(num) {
			v.integer++
		}
		return
	}
	switch strings.ToLower(value) {
	case "true", "false", "yes", "no", "0", "1", "on", "off":
		v.boolean++
	}
}

func (v *typeVote) result(field string) transport.FieldAnalysis {
	filled := v.total - v.empty
	detected := coerce.TypeString
	best := 0
	// Integer beats number when every numeric value is integral; date and
	// boolean need a strict majority of the filled values.
	for _, candidate := range []struct {
		t     coerce.Type
		count int
	}{
		{coerce.TypeInteger, v.integer},
		{coerce.TypeNumber, v.number},
		{coerce.TypeBoolean, v.boolean},
		{coerce.TypeDate, v.date},
	} {
		if candidate.count > best && filled > 0 && candidate.count*2 > filled {
			best = candidate.count
			detected = candidate.t
		}
	}
	confidence := 0.0
	if filled > 0 {
		if detected == coerce.TypeString {
			confidence = 1
		} else {
			confidence = float64(best) / float64(filled)
		}
	}
	emptyFraction := 0.0
	if v.total > 0 {
		emptyFraction = float64(v.empty) / float64(v.total)
	}
	return transport.FieldAnalysis{
		Field:         field,
		DetectedType:  string(detected),
		Confidence:    confidence,
		SampleValues:  v.samples,
		EmptyFraction: emptyFraction,
	}
}

// mappingSynonyms maps normalized column names to recognized target fields.
var mappingSynonyms = map[string]string{
	"make":             "make",
	"brand":            "make",
	"manufacturer":     "make",
	"merk":             "make",
	"model":            "model",
	"modelname":        "model",
	"variant":          "variant",
	"trim":             "variant",
	"uitvoering":       "variant",
	"version":          "variant",
	"body":             "body",
	"bodytype":         "body",
	"bodystyle":        "body",
	"carrosserie":      "body",
	"year":             "year",
	"modelyear":        "year",
	"bouwjaar":         "year",
	"fueltype":         "fuelType",
	"fuel":             "fuelType",
	"brandstof":        "fuelType",
	"transmission":     "transmission",
	"gearbox":          "transmission",
	"transmissie":      "transmission",
	"enginecapacity":   "engineCapacity",
	"displacement":     "engineCapacity",
	"cylinderinhoud":   "engineCapacity",
	"power":            "power",
	"horsepower":       "power",
	"vermogen":         "power",
	"torque":           "torque",
	"koppel":           "torque",
	"seatingcapacity":  "seatingCapacity",
	"seats":            "seatingCapacity",
	"zitplaatsen":      "seatingCapacity",
}

func suggestMapping(fields []string) transport.FieldMapping {
	mapping := transport.FieldMapping{Custom: make(map[string]string)}
	for _, field := range fields {
		normalized := strings.ToLower(strings.Map(func(r rune) rune {
			if r == ' ' || r == '_' || r == '-' {
				return -1
			}
			return r
		}, field))

		target, ok := mappingSynonyms[normalized]
		if !ok {
			mapping.Custom[Slug(field)] = field
			continue
		}
		switch target {
		case "make":
			setIfEmpty(&mapping.Make, field)
		case "model":
			setIfEmpty(&mapping.Model, field)
		case "variant":
			setIfEmpty(&mapping.Variant, field)
		case "body":
			setIfEmpty(&mapping.Body, field)
		case "year":
			setIfEmpty(&mapping.Year, field)
		case "fuelType":
			setIfEmpty(&mapping.FuelType, field)
		case "transmission":
			setIfEmpty(&mapping.Transmission, field)
		case "engineCapacity":
			setIfEmpty(&mapping.EngineCapacity, field)
		case "power":
			setIfEmpty(&mapping.Power, field)
		case "torque":
			setIfEmpty(&mapping.Torque, field)
		case "seatingCapacity":
			setIfEmpty(&mapping.SeatingCapacity, field)
		}
	}
	return mapping
}

func setIfEmpty(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}
