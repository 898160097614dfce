package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

type csvFile struct {
	partition string
	file      *os.File
	writer    *csv.Writer
	headers   []string
}

func (f *csvFile) close() error {
	f.writer.Flush()
	if err := f.writer.Error(); err != nil {
		f.file.Close()
		return err
	}
	return f.file.Close()
}

// CSVOutput appends rows to one file per topic and hour. The header row is
// written only when the file is new, so a restart within the hour keeps
// earlier rows.
type CSVOutput struct {
	mu       sync.Mutex
	basePath string
	folder   string
	files    map[string]*csvFile
}

func NewCSVOutput(basePath, folder string) *CSVOutput {
	return &CSVOutput{
		basePath: basePath,
		folder:   folder,
		files:    make(map[string]*csvFile),
	}
}

func (c *CSVOutput) WriteMessage(topic string, msg []byte) error {
	var event map[string]interface{}
	if err := json.Unmarshal(msg, &event); err != nil {
		return err
	}

	partition, err := partitionPath(event)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.files[topic]
	if ok && f.partition != partition {
		delete(c.files, topic)
		if err := f.close(); err != nil {
			return err
		}
		ok = false
	}
	if !ok {
		f, err = c.openPartition(topic, partition, getHeaders(event))
		if err != nil {
			return err
		}
		c.files[topic] = f
	}

	row := make([]string, len(f.headers))
	for i, header := range f.headers {
		if value, ok := event[header]; ok {
			row[i] = formatValue(value)
		}
	}

	if err := f.writer.Write(row); err != nil {
		return err
	}
	f.writer.Flush()
	return f.writer.Error()
}

func (c *CSVOutput) openPartition(topic, partition string, headers []string) (*csvFile, error) {
	fullPath := partitionDir(c.basePath, c.folder, topic, partition)
	if err := os.MkdirAll(fullPath, os.ModePerm); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(filepath.Join(fullPath, "data.csv"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	f := &csvFile{partition: partition, file: file, writer: csv.NewWriter(file), headers: headers}
	if info.Size() == 0 {
		if err := f.writer.Write(headers); err != nil {
			file.Close()
			return nil, err
		}
	}
	return f, nil
}

func getHeaders(event map[string]interface{}) []string {
	headers := make([]string, 0, len(event))
	for key := range event {
		headers = append(headers, key)
	}
	sort.Strings(headers)
	return headers
}

func formatValue(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

func (c *CSVOutput) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for topic, f := range c.files {
		if err := f.close(); err != nil {
			lastErr = err
		}
		delete(c.files, topic)
	}
	return lastErr
}
