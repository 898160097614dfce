package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/chrisdamba/urbansim/internal/cloudwriter"
	"github.com/chrisdamba/urbansim/internal/models"
	"github.com/lucsky/cuid"
	log "github.com/sirupsen/logrus"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

const parquetParallelism = 4

var parquetSchemas = map[string]string{
	models.TopicTrafficSamples: `{"Tag":"name=parquet_go_root, repetitiontype=REQUIRED","Fields":[
		{"Tag":"name=id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
		{"Tag":"name=grid_x, type=INT32, repetitiontype=REQUIRED"},
		{"Tag":"name=grid_y, type=INT32, repetitiontype=REQUIRED"},
		{"Tag":"name=density, type=DOUBLE, repetitiontype=REQUIRED"},
		{"Tag":"name=time_hour, type=INT32, repetitiontype=REQUIRED"},
		{"Tag":"name=reduction, type=DOUBLE, repetitiontype=REQUIRED"},
		{"Tag":"name=timestamp, type=INT64, repetitiontype=REQUIRED"}]}`,
	models.TopicPollutionMarkers: `{"Tag":"name=parquet_go_root, repetitiontype=REQUIRED","Fields":[
		{"Tag":"name=id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
		{"Tag":"name=lat, type=DOUBLE, repetitiontype=REQUIRED"},
		{"Tag":"name=lng, type=DOUBLE, repetitiontype=REQUIRED"},
		{"Tag":"name=aqi, type=INT32, repetitiontype=REQUIRED"},
		{"Tag":"name=level, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
		{"Tag":"name=timestamp, type=INT64, repetitiontype=REQUIRED"}]}`,
}

func GetSchema(topic string) (string, error) {
	sc, ok := parquetSchemas[topic]
	if !ok {
		return "", fmt.Errorf("no parquet schema for topic %s", topic)
	}
	return sc, nil
}

type parquetPartition struct {
	partition string
	writer    *writer.JSONWriter
	file      source.ParquetFile
}

// finish writes the parquet footer and closes the file; for S3 this uploads
// the object.
func (part *parquetPartition) finish() error {
	if err := part.writer.WriteStop(); err != nil {
		part.file.Close()
		return fmt.Errorf("closing parquet writer for %s: %w", part.partition, err)
	}
	if err := part.file.Close(); err != nil {
		return fmt.Errorf("closing parquet file for %s: %w", part.partition, err)
	}
	return nil
}

// ParquetOutput writes one parquet file per topic and hour, locally or in S3.
// A file is finished as soon as its topic's records move on to the next hour,
// and the open ones on Close. Every file gets a unique name so a partition
// that is reopened never overwrites finished data.
type ParquetOutput struct {
	basePath           string
	folder             string
	mu                 sync.Mutex
	partitions         map[string]*parquetPartition
	cloudWriterFactory cloudwriter.CloudWriterFactory
	cloudBucketName    string
}

func NewParquetOutput(ctx context.Context, cfg *models.Config) (*ParquetOutput, error) {
	p := newParquetOutput(cfg.OutputPath, cfg.OutputFolder)

	switch cfg.CloudStorage.Provider {
	case "", "local":
	case "s3":
		factory, err := cloudwriter.NewS3WriterFactory(ctx, cfg.CloudStorage.Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud writer factory: %w", err)
		}
		p.cloudWriterFactory = factory
		p.cloudBucketName = cfg.CloudStorage.BucketName
	default:
		return nil, fmt.Errorf("unsupported cloud storage provider: %s", cfg.CloudStorage.Provider)
	}

	return p, nil
}

func newParquetOutput(basePath, folder string) *ParquetOutput {
	return &ParquetOutput{
		basePath:   basePath,
		folder:     folder,
		partitions: make(map[string]*parquetPartition),
	}
}

func (p *ParquetOutput) WriteMessage(topic string, msg []byte) error {
	var event map[string]interface{}
	if err := json.Unmarshal(msg, &event); err != nil {
		return err
	}
	partition, err := partitionPath(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	part, ok := p.partitions[topic]
	if ok && part.partition != partition {
		delete(p.partitions, topic)
		if err := part.finish(); err != nil {
			return err
		}
		ok = false
	}
	if !ok {
		part, err = p.createPartition(topic, partition)
		if err != nil {
			return fmt.Errorf("failed to create new writer: %w", err)
		}
		p.partitions[topic] = part
	}

	if err := part.writer.Write(string(msg)); err != nil {
		return fmt.Errorf("failed to write %s record: %w", topic, err)
	}
	return nil
}

func (p *ParquetOutput) createPartition(topic, partition string) (*parquetPartition, error) {
	sc, err := GetSchema(topic)
	if err != nil {
		return nil, err
	}

	fileName := fmt.Sprintf("data-%s.parquet", cuid.New())
	var fw source.ParquetFile
	if p.cloudWriterFactory != nil {
		objectPath := path.Join(p.folder, topic, partition, fileName)
		cw, err := p.cloudWriterFactory.NewWriter(p.cloudBucketName, objectPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud file writer: %w", err)
		}
		fw = NewCloudParquetFile(cw)
	} else {
		fullPath := partitionDir(p.basePath, p.folder, topic, partition)
		if err := os.MkdirAll(fullPath, os.ModePerm); err != nil {
			return nil, err
		}
		fw, err = local.NewLocalFileWriter(filepath.Join(fullPath, fileName))
		if err != nil {
			return nil, fmt.Errorf("failed to create local file writer: %w", err)
		}
	}

	pw, err := writer.NewJSONWriter(sc, fw, parquetParallelism)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to create ParquetWriter: %w", err)
	}
	return &parquetPartition{partition: partition, writer: pw, file: fw}, nil
}

func (p *ParquetOutput) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for topic, part := range p.partitions {
		if err := part.finish(); err != nil {
			lastErr = err
			log.WithError(err).WithField("topic", topic).Error("closing parquet partition")
		}
		delete(p.partitions, topic)
	}
	return lastErr
}

// CloudParquetFile adapts a CloudWriter to the write-only half of
// source.ParquetFile.
type CloudParquetFile struct {
	cloudWriter cloudwriter.CloudWriter
	offset      int64
}

func NewCloudParquetFile(cw cloudwriter.CloudWriter) *CloudParquetFile {
	return &CloudParquetFile{cloudWriter: cw}
}

func (c *CloudParquetFile) Open(name string) (source.ParquetFile, error) {
	return c, nil
}

func (c *CloudParquetFile) Create(name string) (source.ParquetFile, error) {
	return c, nil
}

func (c *CloudParquetFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		c.offset = offset
	case io.SeekCurrent:
		c.offset += offset
	default:
		return 0, fmt.Errorf("seek from end not supported for cloud storage")
	}
	return c.offset, nil
}

func (c *CloudParquetFile) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("read not supported for cloud storage")
}

func (c *CloudParquetFile) Write(p []byte) (int, error) {
	n, err := c.cloudWriter.Write(p)
	c.offset += int64(n)
	return n, err
}

func (c *CloudParquetFile) Close() error {
	return c.cloudWriter.Close()
}
