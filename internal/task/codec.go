package task

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orchestra/internal/criteria"
	"orchestra/internal/frontmatter"
)

// Header keys.
const (
	keyStatus       = "status"
	keyModel        = "model"
	keyWorkspace    = "workspace"
	keyCriteria     = "completion_criteria"
	keyAttempts     = "attempts"
	keyRunID        = "run_id"
	keyCreatedAt    = "created_at"
	keyUpdatedAt    = "updated_at"
	keyOriginalTask = "original_task"
	keyTaskType     = "task_type"
	keyStepNumber   = "step_number"
	keyError        = "error"
	keyResponse     = "response"

	keyContains  = "contains"
	keyMinLength = "min_length"
)

const (
	tagNull      = "!!null"
	tagStr       = "!!str"
	tagInt       = "!!int"
	tagTimestamp = "!!timestamp"
)

// Decode parses a task file. path is recorded on the Record and used in
// errors; it is not read.
func Decode(path string, data []byte) (*Record, error) {
	header, body, err := frontmatter.Split(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	rec := &Record{
		ID:     IDFromPath(path),
		Path:   path,
		Status: StatusPending,
		Body:   body,
	}
	if len(bytes.TrimSpace(header)) == 0 {
		return rec, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(header, &doc); err != nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("invalid YAML header: %w", err)}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return rec, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.ShortTag() == tagNull {
		return rec, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, parseErr(path, "", "header must be a mapping of keys to values")
	}

	seen := make(map[string]struct{}, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, value := root.Content[i], root.Content[i+1]
		key := keyNode.Value
		if _, dup := seen[key]; dup {
			return nil, parseErr(path, key, "duplicate key")
		}
		seen[key] = struct{}{}
		if err := rec.decodeField(path, key, keyNode, value); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (r *Record) decodeField(path, key string, keyNode, value *yaml.Node) error {
	var err error
	switch key {
	case keyStatus:
		var raw string
		var ok bool
		if raw, ok, err = optionalString(path, key, value); err != nil || !ok {
			return err
		}
		status, valid := ParseStatus(raw)
		if !valid {
			return parseErr(path, key, "unknown status %q", raw)
		}
		r.Status = status
	case keyModel:
		r.Model, _, err = optionalString(path, key, value)
	case keyWorkspace:
		r.Workspace, _, err = optionalString(path, key, value)
	case keyCriteria:
		r.Criteria, err = decodeCriteria(path, value)
	case keyAttempts:
		r.Attempts, err = optionalInt(path, key, value)
	case keyStepNumber:
		r.StepNumber, err = optionalInt(path, key, value)
	case keyRunID:
		r.RunID, _, err = optionalString(path, key, value)
	case keyOriginalTask:
		r.OriginalTask, _, err = optionalString(path, key, value)
	case keyTaskType:
		r.TaskType, _, err = optionalString(path, key, value)
	case keyError:
		r.Error, _, err = optionalString(path, key, value)
	case keyCreatedAt:
		r.CreatedAt, err = optionalTime(path, key, value)
	case keyUpdatedAt:
		r.UpdatedAt, err = optionalTime(path, key, value)
	case keyResponse:
		var text string
		var ok bool
		if text, ok, err = optionalString(path, key, value); err == nil && ok {
			r.Response = &text
		}
	default:
		r.extra = append(r.extra, keyNode, value)
	}
	return err
}

func decodeCriteria(path string, node *yaml.Node) (*criteria.Spec, error) {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == tagNull {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, parseErr(path, keyCriteria, "must be a mapping, got %s", describeNode(node))
	}
	spec := &criteria.Spec{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		field := keyCriteria + "." + key
		switch key {
		case keyContains:
			text, ok, err := optionalString(path, field, value)
			if err != nil {
				return nil, err
			}
			if ok {
				spec.Contains = &text
			}
		case keyMinLength:
			if value.ShortTag() == tagNull {
				continue
			}
			n, err := optionalInt(path, field, value)
			if err != nil {
				return nil, err
			}
			spec.MinLength = &n
		default:
			return nil, parseErr(path, field, "unknown criterion")
		}
	}
	if err := spec.Validate(); err != nil {
		return nil, &ParseError{Path: path, Field: keyCriteria + "." + keyMinLength, Err: err}
	}
	if spec.IsEmpty() {
		return nil, nil
	}
	return spec, nil
}

func optionalString(path, field string, node *yaml.Node) (string, bool, error) {
	if node.Kind == yaml.ScalarNode {
		switch node.ShortTag() {
		case tagNull:
			return "", false, nil
		case tagStr:
			return node.Value, true, nil
		}
	}
	return "", false, parseErr(path, field, "must be a string, got %s (quote the value)", describeNode(node))
}

func optionalInt(path, field string, node *yaml.Node) (int, error) {
	if node.Kind == yaml.ScalarNode {
		switch node.ShortTag() {
		case tagNull:
			return 0, nil
		case tagInt:
			var n int
			if err := node.Decode(&n); err != nil {
				return 0, parseErr(path, field, "invalid integer %q", node.Value)
			}
			if n < 0 {
				return 0, parseErr(path, field, "must be non-negative, got %d", n)
			}
			return n, nil
		}
	}
	return 0, parseErr(path, field, "must be an integer, got %s", describeNode(node))
}

func optionalTime(path, field string, node *yaml.Node) (time.Time, error) {
	if node.Kind == yaml.ScalarNode {
		switch node.ShortTag() {
		case tagNull:
			return time.Time{}, nil
		case tagTimestamp:
			var ts time.Time
			if err := node.Decode(&ts); err == nil {
				return ts, nil
			}
		case tagStr:
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
				if ts, err := time.ParseInLocation(layout, node.Value, time.Local); err == nil {
					return ts, nil
				}
			}
		}
	}
	return time.Time{}, parseErr(path, field, "must be a timestamp, got %q", node.Value)
}

func describeNode(node *yaml.Node) string {
	switch node.Kind {
	case yaml.MappingNode:
		return "a mapping"
	case yaml.SequenceNode:
		return "a list"
	case yaml.AliasNode:
		return "an alias"
	}
	switch node.ShortTag() {
	case tagInt:
		return "integer " + node.Value
	case "!!float":
		return "number " + node.Value
	case "!!bool":
		return "boolean " + node.Value
	case tagNull:
		return "null"
	default:
		return strconv.Quote(node.Value)
	}
}

// Encode renders rec as a task file. Known fields are written in a fixed
// order, unknown header keys follow in their original order, and the body is
// appended unchanged.
func Encode(rec *Record) ([]byte, error) {
	if rec == nil {
		return nil, errors.New("encode task: nil record")
	}
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	add := func(key string, value *yaml.Node) {
		root.Content = append(root.Content, strNode(key), value)
	}

	status := rec.Status
	if status == "" {
		status = StatusPending
	}
	add(keyStatus, strNode(string(status)))
	if rec.Model != "" {
		add(keyModel, strNode(rec.Model))
	}
	if rec.Workspace != "" {
		add(keyWorkspace, strNode(rec.Workspace))
	}
	if !rec.Criteria.IsEmpty() {
		spec := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if rec.Criteria.Contains != nil {
			spec.Content = append(spec.Content, strNode(keyContains), strNode(*rec.Criteria.Contains))
		}
		if rec.Criteria.MinLength != nil {
			spec.Content = append(spec.Content, strNode(keyMinLength), intNode(*rec.Criteria.MinLength))
		}
		add(keyCriteria, spec)
	}
	if rec.TaskType != "" {
		add(keyTaskType, strNode(rec.TaskType))
	}
	if rec.OriginalTask != "" {
		add(keyOriginalTask, strNode(rec.OriginalTask))
	}
	if rec.StepNumber > 0 {
		add(keyStepNumber, intNode(rec.StepNumber))
	}
	if !rec.CreatedAt.IsZero() {
		add(keyCreatedAt, timeNode(rec.CreatedAt))
	}
	if rec.Attempts > 0 {
		add(keyAttempts, intNode(rec.Attempts))
	}
	if rec.RunID != "" {
		add(keyRunID, strNode(rec.RunID))
	}
	if !rec.UpdatedAt.IsZero() {
		add(keyUpdatedAt, timeNode(rec.UpdatedAt))
	}
	if rec.Error != "" {
		add(keyError, strNode(rec.Error))
	}
	root.Content = append(root.Content, rec.extra...)
	if rec.Response != nil {
		add(keyResponse, blockNode(*rec.Response))
	}

	var header bytes.Buffer
	enc := yaml.NewEncoder(&header)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode task header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode task header: %w", err)
	}
	return frontmatter.Join(header.Bytes(), rec.Body), nil
}

func strNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagStr, Value: value}
}

func intNode(value int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagInt, Value: strconv.Itoa(value)}
}

func timeNode(value time.Time) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagTimestamp, Value: value.UTC().Format(time.RFC3339)}
}

// blockNode renders multi-line text as a literal block so responses stay
// readable in the file. Text a literal block cannot reproduce exactly is
// double quoted instead.
func blockNode(value string) *yaml.Node {
	node := strNode(value)
	if !strings.Contains(value, "\n") {
		return node
	}
	node.Style = yaml.LiteralStyle
	if !literalSafe(value) || !roundTrips(node, value) {
		node.Style = yaml.DoubleQuotedStyle
	}
	return node
}

// literalSafe rejects text whose leading whitespace, carriage returns, or
// trailing blank lines a literal block would alter.
func literalSafe(value string) bool {
	switch {
	case strings.TrimSpace(value) == "":
		return false
	case strings.HasPrefix(value, " "), strings.HasPrefix(value, "\t"), strings.HasPrefix(value, "\n"):
		return false
	case strings.Contains(value, "\r"), strings.HasSuffix(value, "\n\n"):
		return false
	}
	return true
}

func roundTrips(node *yaml.Node, value string) bool {
	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: []*yaml.Node{strNode(keyResponse), node}}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return false
	}
	var decoded map[string]string
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return false
	}
	return decoded[keyResponse] == value
}
