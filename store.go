package facecapture

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	blendshape "github.com/JoaoVitorSantiagoNogueira/facecapture/blend_shape"
)

// CalibrationToStruct encodes a table as {"<source key>": {"<target key>": scale}}.
func CalibrationToStruct(table *blendshape.CalibrationTable) (*structpb.Struct, error) {
	raw := make(map[string]interface{}, len(table.Sources()))
	for _, src := range table.Sources() {
		row := make(map[string]interface{})
		for _, m := range table.Targets(src) {
			row[strconv.Itoa(int(m.Target))] = m.Scale
		}
		raw[strconv.Itoa(int(src))] = row
	}
	return structpb.NewStruct(raw)
}

// CalibrationFromStruct decodes a table written by CalibrationToStruct.
func CalibrationFromStruct(msg *structpb.Struct) (*blendshape.CalibrationTable, error) {
	var rows map[string]map[string]float64
	if err := mapstructure.Decode(msg.AsMap(), &rows); err != nil {
		return nil, fmt.Errorf("decode calibration: %w", err)
	}
	table := blendshape.NewCalibrationTable()
	for src, row := range rows {
		s, err := strconv.Atoi(src)
		if err != nil {
			return nil, fmt.Errorf("source key %q: %w", src, err)
		}
		for dst, scale := range row {
			d, err := strconv.Atoi(dst)
			if err != nil {
				return nil, fmt.Errorf("target key %q: %w", dst, err)
			}
			table.Set(blendshape.KeyID(s), blendshape.KeyID(d), scale)
		}
	}
	return table, nil
}

// SaveCalibration writes a table to path as JSON.
func SaveCalibration(path string, table *blendshape.CalibrationTable) error {
	msg, err := CalibrationToStruct(table)
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write calibration: %w", err)
	}
	return nil
}

// LoadCalibration reads a table saved with SaveCalibration.
func LoadCalibration(path string) (*blendshape.CalibrationTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}
	var msg structpb.Struct
	if err := protojson.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse calibration: %w", err)
	}
	return CalibrationFromStruct(&msg)
}
