package executor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/hashicorp/go-hclog"
)

// Docker 在容器里跑同样的分通道负载，每个通道是一个 busybox shell 循环
type Docker struct {
	cli    *client.Client
	logger hclog.Logger

	Image string
	// UnitLoop 每个工作单元的 shell 循环次数
	UnitLoop int
}

// NewDocker 初始化 Docker 客户端
func NewDocker(logger hclog.Logger) (*Docker, error) {
	// 自动从环境变量或默认路径连接本地 Docker
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithVersion("1.44"))
	if err != nil {
		return nil, err
	}
	return &Docker{
		cli:      cli,
		logger:   logger.Named("docker"),
		Image:    "alpine:latest", // 默认用 alpine，体积小
		UnitLoop: 20000,
	}, nil
}

// Script 生成容器内执行的命令：每个通道一个后台子 shell，最后 wait
func (e *Docker) Script(ic, pc int) string {
	var sb strings.Builder
	for _, units := range SplitLanes(ic, pc) {
		if units == 0 {
			continue
		}
		fmt.Fprintf(&sb, "( u=0; while [ $u -lt %d ]; do i=0; while [ $i -lt %d ]; do i=$((i+1)); done; u=$((u+1)); done ) & ",
			units, e.UnitLoop)
	}
	sb.WriteString("wait")
	return sb.String()
}

func (e *Docker) Run(ctx context.Context, ic, pc int) (time.Duration, error) {
	// 1. 创建容器 (Create Container)
	resp, err := e.cli.ContainerCreate(ctx, &container.Config{
		Image: e.Image,
		Cmd:   []string{"sh", "-c", e.Script(ic, pc)},
		Tty:   false,
	}, &container.HostConfig{
		Resources: container.Resources{NanoCPUs: int64(pc) * 1e9},
	}, nil, nil, "")
	if err != nil {
		return 0, err
	}
	containerID := resp.ID
	// 清理容器，就像 defer 垃圾回收
	defer e.cli.ContainerRemove(context.Background(), containerID, types.ContainerRemoveOptions{Force: true})

	// 2. 启动容器并计时
	start := time.Now()
	if err := e.cli.ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		return 0, err
	}

	// 3. 等待容器结束 (Wait)
	statusCh, errCh := e.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return 0, err
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}
	elapsed := time.Since(start)

	if exitCode != 0 {
		return elapsed, fmt.Errorf("container %s exited with %d: %s", containerID[:12], exitCode, e.logs(ctx, containerID))
	}
	e.logger.Debug("container finished", "id", containerID[:12], "ic", ic, "pc", pc, "elapsed", elapsed)
	return elapsed, nil
}

// logs 取容器输出，stdcopy 把多路复用流拆开写进同一个 buffer
func (e *Docker) logs(ctx context.Context, containerID string) string {
	out, err := e.cli.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return err.Error()
	}
	defer out.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, out); err != nil {
		return err.Error()
	}
	return strings.TrimSpace(buf.String())
}
