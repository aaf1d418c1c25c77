package indexer

import (
	"context"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const exportPageSize = 500

type transferRow struct {
	TxID      string `parquet:"name=tx_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	From      string `parquet:"name=from_vaddr, type=BYTE_ARRAY, convertedtype=UTF8"`
	To        string `parquet:"name=to_vaddr, type=BYTE_ARRAY, convertedtype=UTF8"`
	Nonce     int64  `parquet:"name=nonce, type=INT64"`
	Sequence  int64  `parquet:"name=sequence, type=INT64"`
	Kind      string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64  `parquet:"name=timestamp, type=INT64"`
}

// ExportTransfers writes every transfer matching filter to a SNAPPY
// compressed parquet file at path and returns the row count. filter.Limit and
// filter.AfterSequence only seed the paging; the export runs to the end.
func (s *Store) ExportTransfers(ctx context.Context, path string, filter TransferFilter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(transferRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	filter.Limit = exportPageSize
	written := 0
	for {
		page, err := s.Transfers(ctx, filter)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, rec := range page {
			row := &transferRow{
				TxID:      rec.TxID,
				From:      rec.FromVAddr,
				To:        rec.ToVAddr,
				Nonce:     int64(rec.Nonce),
				Sequence:  int64(rec.Sequence),
				Kind:      rec.Kind,
				Timestamp: int64(rec.Timestamp),
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("indexer: parquet write: %w", err)
			}
			written++
			filter.AfterSequence = rec.Sequence
		}
		if len(page) < exportPageSize {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return written, nil
}
