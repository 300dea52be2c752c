package wml

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// PayloadWarnSize is the payload size above which the service is likely to
// reject a job.
const PayloadWarnSize = 100_000_000

const inputPlaceholder = `"XXX"`

// Solve parameter keys.
const (
	ParamLogTail        = "oaas.logTailEnabled"
	ParamIncludeInput   = "oaas.includeInputData"
	ParamResultsFormat  = "oaas.resultsFormat"
	ParamEngineLogLevel = "oaas.engineLogLevel"
	ParamCPOCommand     = "oaas.cpo.command"
)

// Output patterns requested from every job.
var outputPatterns = []string{`.*\.csv`, `.*\.txt`, `.*\.json`, `.*\.xml`}

// InputItem is one attachment of a job. Content is raw; it is base64
// encoded on the wire.
type InputItem struct {
	ID      string `json:"id"`
	Content []byte `json:"content"`
}

// DataFromBytes wraps raw bytes as an attachment.
func DataFromBytes(id string, data []byte) InputItem {
	return InputItem{ID: id, Content: data}
}

// DataFromString wraps text as an attachment.
func DataFromString(id, text string) InputItem {
	return InputItem{ID: id, Content: []byte(text)}
}

// DataFromFile reads a file into an attachment.
func DataFromFile(id, path string) (InputItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return InputItem{}, fmt.Errorf("read input %s: %w", id, err)
	}
	return InputItem{ID: id, Content: data}, nil
}

// PayloadRequest describes one job payload.
type PayloadRequest struct {
	DeploymentID string
	Engine       Engine

	// ModelName is the attachment id of the model; ModelPath is the file
	// streamed into it.
	ModelName string
	ModelPath string

	Inputs []InputItem

	// Overrides are added to, and win over, the default solve parameters.
	Overrides map[string]string
}

type jobPayload struct {
	Name                 string    `json:"name"`
	SpaceID              string    `json:"space_id"`
	Deployment           idRef     `json:"deployment"`
	DecisionOptimization doPayload `json:"decision_optimization"`
}

type doPayload struct {
	SolveParameters map[string]string `json:"solve_parameters"`
	OutputData      []idRef           `json:"output_data"`
	InputData       string            `json:"input_data"`
}

// SolveParameters returns the solve parameters sent for engine, with
// overrides applied.
func (c *Connector) SolveParameters(engine Engine, overrides map[string]string) map[string]string {
	params := map[string]string{
		ParamLogTail:        strconv.FormatBool(c.settings.EngineProgress),
		ParamIncludeInput:   "false",
		ParamResultsFormat:  engine.ResultsFormat(),
		ParamEngineLogLevel: c.settings.EngineLogLevel,
	}
	for k, v := range overrides {
		params[k] = v
	}
	return params
}

// BuildPayload assembles the job document for req. The input items come
// first in input_data, followed by the model whose base64 encoding is
// streamed from disk.
func (c *Connector) BuildPayload(req PayloadRequest) ([]byte, error) {
	session := c.exporter.Session()
	for _, in := range req.Inputs {
		session.Write(in.ID, in.Content)
	}
	session.Copy(req.ModelName, req.ModelPath)

	skeleton := jobPayload{
		Name:       "Job_for_" + req.DeploymentID,
		SpaceID:    c.SpaceID(),
		Deployment: idRef{ID: req.DeploymentID},
		DecisionOptimization: doPayload{
			SolveParameters: c.SolveParameters(req.Engine, req.Overrides),
			InputData:       "XXX",
		},
	}
	for _, p := range outputPatterns {
		skeleton.DecisionOptimization.OutputData = append(skeleton.DecisionOptimization.OutputData, idRef{ID: p})
	}
	doc, err := json.Marshal(skeleton)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	at := bytes.LastIndex(doc, []byte(inputPlaceholder))
	if at < 0 {
		return nil, errors.New("marshal payload: input placeholder not found")
	}
	before, after := doc[:at], doc[at+len(inputPlaceholder):]

	model, err := os.Open(req.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("open model %s: %w", req.ModelPath, err)
	}
	defer model.Close()

	var buf bytes.Buffer
	if info, err := model.Stat(); err == nil {
		buf.Grow(len(doc) + base64.StdEncoding.EncodedLen(int(info.Size())) + 256)
	}
	buf.Write(before)
	buf.WriteByte('[')
	for _, in := range req.Inputs {
		item, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal input %s: %w", in.ID, err)
		}
		buf.Write(item)
		buf.WriteByte(',')
	}
	id, err := json.Marshal(req.ModelName)
	if err != nil {
		return nil, fmt.Errorf("marshal model name: %w", err)
	}
	buf.WriteString(`{"id":`)
	buf.Write(id)
	buf.WriteString(`,"content":"`)
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	if _, err := io.Copy(enc, model); err != nil {
		return nil, fmt.Errorf("encode model %s: %w", req.ModelPath, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode model %s: %w", req.ModelPath, err)
	}
	buf.WriteString(`"}]`)
	buf.Write(after)

	payload := buf.Bytes()
	if len(payload) > PayloadWarnSize {
		c.logger.Error("payload is certainly above the service size limits", "bytes", len(payload))
	}
	session.Write("wml_payload.json", payload)
	c.logger.Debug("payload built", "deployment_id", req.DeploymentID, "model", filepath.Base(req.ModelPath), "bytes", len(payload))
	return payload, nil
}
