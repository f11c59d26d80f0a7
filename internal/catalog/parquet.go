package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

type EncodeResult struct {
	Data        []byte
	RecordCount int64
}

func EncodeParquet(items []Apparel) (EncodeResult, error) {
	if len(items) == 0 {
		return EncodeResult{}, fmt.Errorf("apparels are required")
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return EncodeResult{}, err
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Apparel](buf)
	if _, err := writer.Write(items); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}
	return EncodeResult{Data: buf.Bytes(), RecordCount: int64(len(items))}, nil
}

func DecodeParquet(data []byte) ([]Apparel, error) {
	reader := parquet.NewGenericReader[Apparel](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	out := make([]Apparel, 0, reader.NumRows())
	buf := make([]Apparel, 128)
	for {
		n, err := reader.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		if n == 0 {
			return out, nil
		}
	}
}
