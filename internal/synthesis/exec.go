package synthesis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/mattn/go-shellwords"
)

type execProvider struct {
	cmd        []string
	sampleRate int
	channels   int
}

type execRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	Speed      float64 `json:"speed"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecProvider runs command once per chunk. The request is written to
// stdin as JSON; stdout carries JSON lines of base64 16-bit PCM.
func NewExecProvider(command string, sampleRate, channels int) (Provider, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execProvider{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execProvider) Name() string { return "exec" }

func (e *execProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	data, err := json.Marshal(execRequest{
		Text:       req.Text,
		Voice:      string(req.Voice),
		Speed:      req.Speed,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var pcm []byte
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			cmd.Wait()
			return nil, fmt.Errorf("decode tts output: %w", err)
		}
		frame, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			cmd.Wait()
			return nil, fmt.Errorf("decode pcm: %w", err)
		}
		pcm = append(pcm, frame...)
	}
	if err := scanner.Err(); err != nil {
		cmd.Wait()
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("tts command failed: %w: %s", err, stderr.String())
	}
	return audio.EncodePCM16(pcm, e.sampleRate, e.channels)
}
