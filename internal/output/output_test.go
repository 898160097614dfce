package output

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/chrisdamba/urbansim/internal/cloudwriter"
	"github.com/chrisdamba/urbansim/internal/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgconn"
)

var snapshotTime = time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

func sampleTraffic() []models.TrafficSample {
	return []models.TrafficSample{
		{ID: "t1", GridX: 0, GridY: 0, Density: 0.25, TimeHour: 14, Timestamp: snapshotTime},
		{ID: "t2", GridX: 0, GridY: 1, Density: 0.5, TimeHour: 14, Timestamp: snapshotTime},
	}
}

func samplePollution() []models.PollutionMarker {
	return []models.PollutionMarker{
		{ID: "p1", Lat: 37.77, Lng: -122.41, AQI: 42, Level: models.LevelGood, Timestamp: snapshotTime},
	}
}

func TestPartitionPath(t *testing.T) {
	tests := []struct {
		name    string
		event   map[string]interface{}
		want    string
		wantErr bool
	}{
		{"unix seconds", map[string]interface{}{"timestamp": float64(snapshotTime.Unix())}, "year=2024/month=03/day=09/hour=14", false},
		{"missing", map[string]interface{}{}, "", true},
		{"string", map[string]interface{}{"timestamp": "2024-03-09"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := partitionPath(tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("partition=%q want %q", got, tt.want)
			}
		})
	}
}

func TestNewDestination(t *testing.T) {
	for _, name := range []string{"", "none"} {
		dest, err := NewDestination(context.Background(), &models.Config{OutputDestination: name})
		if err != nil || dest != nil {
			t.Fatalf("%q: dest=%v err=%v, want nil, nil", name, dest, err)
		}
	}

	if _, err := NewDestination(context.Background(), &models.Config{OutputDestination: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown destination")
	}

	dest, err := NewDestination(context.Background(), &models.Config{OutputDestination: "console"})
	if err != nil {
		t.Fatalf("console: %v", err)
	}
	if _, ok := dest.(*ConsoleOutput); !ok {
		t.Fatalf("console destination is %T", dest)
	}
}

func TestConsoleOutputWriteSnapshot(t *testing.T) {
	var buf bytes.Buffer
	dest := NewConsoleOutput(&buf)

	if err := WriteSnapshot(dest, sampleTraffic(), 0.1, samplePollution()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "[traffic_samples] ") {
		t.Fatalf("first line=%q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "[pollution_markers] ") {
		t.Fatalf("last line=%q", lines[2])
	}

	var rec models.TrafficRecord
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "[traffic_samples] ")), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ID != "t2" || rec.GridY != 1 || rec.Reduction != 0.1 || rec.Timestamp != snapshotTime.Unix() {
		t.Fatalf("record=%+v", rec)
	}
}

type failingDestination struct{ writes int }

func (f *failingDestination) WriteMessage(string, []byte) error {
	f.writes++
	return os.ErrClosed
}

func (f *failingDestination) Close() error { return nil }

func TestWriteSnapshotContinuesAfterFailure(t *testing.T) {
	dest := &failingDestination{}
	err := WriteSnapshot(dest, sampleTraffic(), 0, samplePollution())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if dest.writes != 3 {
		t.Fatalf("writes=%d want 3", dest.writes)
	}
}

func TestJSONOutputPartitionsByTopicAndHour(t *testing.T) {
	dir := t.TempDir()
	dest := NewJSONOutput(dir, "archive")

	if err := WriteSnapshot(dest, sampleTraffic(), 0, samplePollution()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := dest.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "archive", "traffic_samples", "year=2024", "month=03", "day=09", "hour=14", "data.json")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var n int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec models.TrafficRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %d: %v", n, err)
		}
		n++
	}
	if n != 2 {
		t.Fatalf("records=%d want 2", n)
	}

	if _, err := os.Stat(filepath.Join(dir, "archive", "pollution_markers", "year=2024", "month=03", "day=09", "hour=14", "data.json")); err != nil {
		t.Fatalf("pollution partition: %v", err)
	}
}

func TestCSVOutputWritesSortedHeaders(t *testing.T) {
	dir := t.TempDir()
	dest := NewCSVOutput(dir, "archive")

	if err := WriteSnapshot(dest, sampleTraffic(), 0, nil); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := dest.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "archive", "traffic_samples", "year=2024", "month=03", "day=09", "hour=14", "data.csv"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d want 3", len(rows))
	}
	wantHeader := "density,grid_x,grid_y,id,reduction,time_hour,timestamp"
	if got := strings.Join(rows[0], ","); got != wantHeader {
		t.Fatalf("header=%q want %q", got, wantHeader)
	}
	if rows[1][0] != "0.25" || rows[1][3] != "t1" {
		t.Fatalf("row=%v", rows[1])
	}
	if rows[2][6] != "1709994600" {
		t.Fatalf("timestamp=%q want unix seconds", rows[2][6])
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{0.1, "0.1"},
		{float64(1709994600), "1709994600"},
		{"good", "good"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Fatalf("formatValue(%v)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func readParquetFiles(t *testing.T, dir string) [][]byte {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, "data-*.parquet"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	var files [][]byte
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		files = append(files, data)
	}
	return files
}

func isParquet(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PAR1")) && bytes.HasSuffix(data, []byte("PAR1"))
}

func TestParquetOutputLocalFile(t *testing.T) {
	dir := t.TempDir()
	dest := newParquetOutput(dir, "archive")

	if err := WriteSnapshot(dest, sampleTraffic(), 0, samplePollution()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := dest.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files := readParquetFiles(t, filepath.Join(dir, "archive", "traffic_samples", "year=2024", "month=03", "day=09", "hour=14"))
	if len(files) != 1 {
		t.Fatalf("files=%d want 1", len(files))
	}
	if !isParquet(files[0]) {
		t.Fatal("file is not framed as parquet")
	}
}

func TestParquetOutputFinishesPastHours(t *testing.T) {
	dir := t.TempDir()
	dest := newParquetOutput(dir, "archive")

	first := sampleTraffic()
	next := sampleTraffic()
	for i := range next {
		next[i].Timestamp = snapshotTime.Add(time.Hour)
	}

	if err := WriteSnapshot(dest, first, 0, nil); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := WriteSnapshot(dest, next, 0, nil); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	// hour 14 is complete before Close
	files := readParquetFiles(t, filepath.Join(dir, "archive", "traffic_samples", "year=2024", "month=03", "day=09", "hour=14"))
	if len(files) != 1 || !isParquet(files[0]) {
		t.Fatalf("hour 14: files=%d, want one finished parquet file", len(files))
	}
	if len(dest.partitions) != 1 {
		t.Fatalf("open partitions=%d want 1", len(dest.partitions))
	}

	// returning to a finished hour starts a new file instead of overwriting
	if err := WriteSnapshot(dest, first, 0, nil); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := dest.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	files = readParquetFiles(t, filepath.Join(dir, "archive", "traffic_samples", "year=2024", "month=03", "day=09", "hour=14"))
	if len(files) != 2 {
		t.Fatalf("hour 14: files=%d want 2", len(files))
	}
	for _, f := range files {
		if !isParquet(f) {
			t.Fatal("file is not framed as parquet")
		}
	}
}

func TestJSONOutputClosesPastHours(t *testing.T) {
	dir := t.TempDir()
	dest := NewJSONOutput(dir, "archive")

	next := sampleTraffic()
	for i := range next {
		next[i].Timestamp = snapshotTime.Add(time.Hour)
	}
	if err := WriteSnapshot(dest, sampleTraffic(), 0, nil); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := WriteSnapshot(dest, next, 0, nil); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if n := dest.openPartitions(); n != 1 {
		t.Fatalf("open partitions=%d want 1", n)
	}
	if err := dest.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, hour := range []string{"hour=14", "hour=15"} {
		data, err := os.ReadFile(filepath.Join(dir, "archive", "traffic_samples", "year=2024", "month=03", "day=09", hour, "data.json"))
		if err != nil {
			t.Fatalf("%s: %v", hour, err)
		}
		if lines := strings.Count(string(data), "\n"); lines != 2 {
			t.Fatalf("%s: lines=%d want 2", hour, lines)
		}
	}
}

func TestCSVOutputAppendsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	for run := 0; run < 2; run++ {
		dest := NewCSVOutput(dir, "archive")
		if err := WriteSnapshot(dest, sampleTraffic(), 0, nil); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if err := dest.Close(); err != nil {
			t.Fatalf("run %d Close: %v", run, err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "archive", "traffic_samples", "year=2024", "month=03", "day=09", "hour=14", "data.csv"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows=%d want 1 header + 4 records", len(rows))
	}
	if rows[0][0] != "density" || rows[3][0] != "0.25" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestGetSchemaUnknownTopic(t *testing.T) {
	if _, err := GetSchema("weather"); err == nil {
		t.Fatal("expected error")
	}
}

type memoryCloudWriter struct {
	buf    bytes.Buffer
	closed bool
}

func (w *memoryCloudWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memoryCloudWriter) Close() error {
	w.closed = true
	return nil
}

var _ cloudwriter.CloudWriter = (*memoryCloudWriter)(nil)

func TestCloudParquetFileTracksOffset(t *testing.T) {
	cw := &memoryCloudWriter{}
	f := NewCloudParquetFile(cw)

	if _, err := f.Write([]byte("PAR1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if off, _ := f.Seek(0, 1); off != 4 {
		t.Fatalf("offset=%d want 4", off)
	}
	if _, err := f.Seek(0, 2); err == nil {
		t.Fatal("seek from end should fail")
	}
	if _, err := f.Read(make([]byte, 1)); err == nil {
		t.Fatal("read should fail")
	}
	if err := f.Close(); err != nil || !cw.closed {
		t.Fatalf("Close err=%v closed=%v", err, cw.closed)
	}
}

func TestKafkaOutputPrefixesTopic(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var rec models.PollutionRecord
		return json.Unmarshal(val, &rec)
	})

	dest := NewKafkaOutputWithProducer(producer, "urbansim.")
	if err := WriteSnapshot(dest, nil, 0, samplePollution()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := dest.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := dest.WriteMessage(models.TopicPollutionMarkers, []byte("{}")); err == nil {
		t.Fatal("write after Close should fail")
	}
}

type fakeToken struct {
	completed bool
	err       error
}

func (t *fakeToken) Wait() bool {
	return t.completed
}

func (t *fakeToken) WaitTimeout(time.Duration) bool {
	return t.completed
}

func (t *fakeToken) Error() error {
	return t.err
}

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.completed {
		close(ch)
	}
	return ch
}

// fakeMQTTClient records publishes; unused Client methods panic through the
// nil embedded interface.
type fakeMQTTClient struct {
	mqtt.Client
	token        *fakeToken
	topics       []string
	payloads     [][]byte
	disconnected bool
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return c.token
}

func (c *fakeMQTTClient) Disconnect(quiesce uint) {
	c.disconnected = true
}

func TestMQTTOutputTopics(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   []string
	}{
		{"prefixed", "urbansim", []string{"urbansim/traffic_samples", "urbansim/pollution_markers"}},
		{"no prefix", "", []string{"traffic_samples", "pollution_markers"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeMQTTClient{token: &fakeToken{completed: true}}
			dest := NewMQTTOutputWithClient(client, tt.prefix)

			if err := WriteSnapshot(dest, sampleTraffic()[:1], 0, samplePollution()); err != nil {
				t.Fatalf("WriteSnapshot: %v", err)
			}
			if strings.Join(client.topics, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("topics=%v want %v", client.topics, tt.want)
			}
			var rec models.TrafficRecord
			if err := json.Unmarshal(client.payloads[0], &rec); err != nil || rec.ID != "t1" {
				t.Fatalf("payload=%s err=%v", client.payloads[0], err)
			}
			if err := dest.Close(); err != nil || !client.disconnected {
				t.Fatalf("Close err=%v disconnected=%v", err, client.disconnected)
			}
		})
	}
}

func TestMQTTOutputPublishFailures(t *testing.T) {
	tests := []struct {
		name    string
		token   *fakeToken
		wantErr string
	}{
		{"timeout", &fakeToken{completed: false}, "timed out publishing to urbansim/traffic_samples"},
		{"broker error", &fakeToken{completed: true, err: os.ErrPermission}, os.ErrPermission.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := NewMQTTOutputWithClient(&fakeMQTTClient{token: tt.token}, "urbansim")
			err := dest.WriteMessage(models.TopicTrafficSamples, []byte("{}"))
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("err=%v want %q", err, tt.wantErr)
			}
		})
	}
}

type recordingExecer struct {
	queries []string
	args    [][]any
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.queries = append(r.queries, sql)
	r.args = append(r.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestPostgresOutputInsertsByTopic(t *testing.T) {
	db := &recordingExecer{}
	dest := NewPostgresOutputWithExecer(db)

	if err := dest.InitTables(context.Background()); err != nil {
		t.Fatalf("InitTables: %v", err)
	}
	if err := WriteSnapshot(dest, sampleTraffic()[:1], 0.2, samplePollution()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	if len(db.queries) != 4 {
		t.Fatalf("queries=%d want 4", len(db.queries))
	}
	if !strings.Contains(db.queries[2], "INSERT INTO traffic_data") {
		t.Fatalf("query=%q", db.queries[2])
	}
	if got := db.args[2][5]; got != 0.2 {
		t.Fatalf("reduction arg=%v want 0.2", got)
	}
	if got := db.args[2][6].(time.Time); !got.Equal(snapshotTime) {
		t.Fatalf("timestamp arg=%v want %v", got, snapshotTime)
	}
	if !strings.Contains(db.queries[3], "INSERT INTO pollution_data") {
		t.Fatalf("query=%q", db.queries[3])
	}

	if err := dest.WriteMessage("weather", []byte("{}")); err == nil {
		t.Fatal("expected error for unknown topic")
	}
}
