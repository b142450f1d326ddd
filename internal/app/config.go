package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/conductor-backend/internal/orchestrator"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
	"github.com/yungbote/conductor-backend/internal/utils"
)

type Config struct {
	PollInterval  time.Duration
	MaxConcurrent int

	Containers []orchestrator.Container

	AgentProgram  string
	AgentBaseArgs []string
	AgentProfile  string
	StdoutCap     int64

	JWTSecret string
}

func LoadConfig(log *logger.Logger) (Config, error) {
	pollSeconds := utils.GetEnvAsInt("ORCH_POLL_INTERVAL", 30, log)
	maxConcurrent := utils.GetEnvAsInt("ORCH_MAX_CONCURRENT", 2, log)

	containers, err := loadContainers(log)
	if err != nil {
		return Config{}, err
	}

	agentProgram := utils.GetEnv("ORCH_AGENT_BIN", "npx", log)
	agentArgs := strings.Fields(utils.GetEnv("ORCH_AGENT_ARGS", "-y @anthropic-ai/claude-code@latest", log))
	agentProfile := utils.GetEnv("ORCH_AGENT_PROFILE", "claude-code", log)
	stdoutCap := utils.GetEnvAsInt("ORCH_STDOUT_CAP", 10*1024*1024, log)

	return Config{
		PollInterval:  time.Duration(pollSeconds) * time.Second,
		MaxConcurrent: maxConcurrent,
		Containers:    containers,
		AgentProgram:  agentProgram,
		AgentBaseArgs: agentArgs,
		AgentProfile:  agentProfile,
		StdoutCap:     int64(stdoutCap),
		JWTSecret:     utils.GetEnv("ORCH_JWT_SECRET", "", log),
	}, nil
}

type containersFile struct {
	Containers []orchestrator.Container `yaml:"containers"`
}

// loadContainers builds the fixed inventory: from CONTAINERS_FILE when set,
// otherwise compiled-in defaults shaped by ORCH_CONTAINER_COUNT, ORCH_BASE_PORT
// and ORCH_WORKTREE_ROOT.
func loadContainers(log *logger.Logger) ([]orchestrator.Container, error) {
	if path := utils.GetEnv("CONTAINERS_FILE", "", log); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read containers file: %w", err)
		}
		var parsed containersFile
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("parse containers file: %w", err)
		}
		if len(parsed.Containers) == 0 {
			return nil, fmt.Errorf("containers file %s declares no containers", path)
		}
		log.Info("Container inventory loaded from file", "path", path, "count", len(parsed.Containers))
		return parsed.Containers, nil
	}

	count := utils.GetEnvAsInt("ORCH_CONTAINER_COUNT", 3, log)
	basePort := utils.GetEnvAsInt("ORCH_BASE_PORT", 8081, log)
	root := utils.GetEnv("ORCH_WORKTREE_ROOT", "/worktrees", log)
	return orchestrator.DefaultContainers(count, basePort, root), nil
}
