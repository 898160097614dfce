package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

type jsonFile struct {
	partition string
	file      *os.File
}

// JSONOutput appends one JSON document per line. Each topic keeps only its
// current hour's partition open; the previous one is closed when records move
// on to a new hour.
type JSONOutput struct {
	mu       sync.Mutex
	basePath string
	folder   string
	files    map[string]*jsonFile
}

func NewJSONOutput(basePath, folder string) *JSONOutput {
	return &JSONOutput{
		basePath: basePath,
		folder:   folder,
		files:    make(map[string]*jsonFile),
	}
}

func (j *JSONOutput) WriteMessage(topic string, msg []byte) error {
	var event map[string]interface{}
	if err := json.Unmarshal(msg, &event); err != nil {
		return err
	}

	partition, err := partitionPath(event)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, ok := j.files[topic]
	if ok && f.partition != partition {
		delete(j.files, topic)
		if err := f.file.Close(); err != nil {
			return err
		}
		ok = false
	}
	if !ok {
		fullPath := partitionDir(j.basePath, j.folder, topic, partition)
		if err := os.MkdirAll(fullPath, os.ModePerm); err != nil {
			return err
		}
		file, err := os.OpenFile(filepath.Join(fullPath, "data.json"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		f = &jsonFile{partition: partition, file: file}
		j.files[topic] = f
	}

	if _, err := f.file.Write(msg); err != nil {
		return err
	}
	_, err = f.file.WriteString("\n")
	return err
}

// openPartitions reports how many partition files are open.
func (j *JSONOutput) openPartitions() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.files)
}

func (j *JSONOutput) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var lastErr error
	for topic, f := range j.files {
		if err := f.file.Close(); err != nil {
			lastErr = err
		}
		delete(j.files, topic)
	}
	return lastErr
}
