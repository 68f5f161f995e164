package tableio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/roach88/refinery/internal/data"
)

// WriteJSON renders a batch as an array of records, one object per row,
// preserving each row's own field order. Ints and floats keep their types;
// dates encode as layout strings and are re-cast on load.
func WriteJSON(w io.Writer, batch data.Batch) error {
	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i, row := range batch {
		if i > 0 {
			buf.WriteString(",\n")
		}
		buf.WriteString("  {")
		for j, key := range row.Keys() {
			if j > 0 {
				buf.WriteString(", ")
			}
			keyBytes, err := json.Marshal(key)
			if err != nil {
				return fmt.Errorf("marshal key %q: %w", key, err)
			}
			buf.Write(keyBytes)
			buf.WriteString(": ")
			v, _ := row.Get(key)
			valBytes, err := data.MarshalValue(v)
			if err != nil {
				return fmt.Errorf("row %d field %q: %w", row.Num(), key, err)
			}
			buf.Write(valBytes)
		}
		buf.WriteString("}")
	}
	buf.WriteString("\n]\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadJSON parses an array of record objects into a batch, preserving each
// object's field order.
func ReadJSON(r io.Reader) (data.Batch, []string, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("read json: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, nil, fmt.Errorf("json input must be an array of records")
	}

	var batch data.Batch
	for dec.More() {
		row, err := readJSONRecord(dec)
		if err != nil {
			return nil, nil, fmt.Errorf("json record %d: %w", len(batch)+1, err)
		}
		batch = append(batch, row)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("read json: %w", err)
	}
	return batch, batch.Headers(), nil
}

// readJSONRecord decodes one object with the token stream so that field
// order is preserved; a plain map would lose it.
func readJSONRecord(dec *json.Decoder) (*data.Row, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected an object, got %v", tok)
	}
	row := data.NewRow(0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected a field name, got %v", keyTok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		v, err := data.FromGo(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		row.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return row, nil
}

// ReadJSONFile reads a JSON record file from disk.
func ReadJSONFile(path string) (data.Batch, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadJSON(f)
}

// WriteJSONFile writes a JSON record file to disk.
func WriteJSONFile(path string, batch data.Batch) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSON(f, batch); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
