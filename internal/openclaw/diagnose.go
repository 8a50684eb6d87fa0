package openclaw

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// DiagnoseItemStatus 诊断项状态
type DiagnoseItemStatus string

const (
	DiagnosePass DiagnoseItemStatus = "pass"
	DiagnoseFail DiagnoseItemStatus = "fail"
	DiagnoseWarn DiagnoseItemStatus = "warn"
)

// DiagnoseItem 单个诊断项
type DiagnoseItem struct {
	Name       string             `json:"name"`
	Label      string             `json:"label"`
	Status     DiagnoseItemStatus `json:"status"`
	Detail     string             `json:"detail"`
	Suggestion string             `json:"suggestion,omitempty"`
}

// DiagnoseResult 诊断结果
type DiagnoseResult struct {
	Items   []DiagnoseItem `json:"items"`
	Summary string         `json:"summary"` // pass | fail | warn
	Message string         `json:"message"`
}

// Diagnose 依次检查安装、配置、网关状态与端口
func (s *Service) Diagnose(ctx context.Context) *DiagnoseResult {
	result := &DiagnoseResult{}
	overall := DiagnosePass
	add := func(item DiagnoseItem) {
		result.Items = append(result.Items, item)
		switch {
		case item.Status == DiagnoseFail:
			overall = DiagnoseFail
		case item.Status == DiagnoseWarn && overall == DiagnosePass:
			overall = DiagnoseWarn
		}
	}

	inst := s.cli.Locate(ctx)
	add(checkInstalled(inst))
	add(s.checkConfigExists())
	add(s.checkConfigValid())

	state := Stopped
	if inst.State == Installed {
		state = s.Status(ctx)
	}
	listening := s.Listening()
	add(checkGatewayState(state))
	add(s.checkPortReachable(listening))
	add(s.checkGatewayAPI(listening))
	add(s.checkPortConflict(state, listening))

	result.Summary = string(overall)
	switch overall {
	case DiagnosePass:
		result.Message = "Gateway 运行正常"
	case DiagnoseWarn:
		result.Message = "Gateway 存在警告项，建议检查"
	case DiagnoseFail:
		result.Message = "Gateway 存在异常，请根据建议修复"
	}
	return result
}

func checkInstalled(inst Installation) DiagnoseItem {
	item := DiagnoseItem{Name: "openclaw_installed", Label: "OpenClaw 已安装"}
	switch inst.State {
	case Installed:
		item.Status = DiagnosePass
		item.Detail = fmt.Sprintf("openclaw %s (%s)", inst.Version, inst.Path)
	case Incomplete:
		item.Status = DiagnoseFail
		item.Detail = "安装不完整: " + inst.Detail
		item.Suggestion = "请运行 openclawsetup install tool，安装前会自动清理残留文件"
	default:
		item.Status = DiagnoseFail
		item.Detail = "未检测到 openclaw"
		item.Suggestion = "请运行 openclawsetup install 安装 OpenClaw"
	}
	return item
}

func (s *Service) checkConfigExists() DiagnoseItem {
	item := DiagnoseItem{Name: "config_exists", Label: "配置文件存在"}
	if s.config == nil || s.config.Path() == "" {
		item.Status = DiagnoseFail
		item.Detail = "无法确定配置文件路径"
		item.Suggestion = "请确认用户主目录可访问"
		return item
	}
	if !s.config.Exists() {
		item.Status = DiagnoseFail
		item.Detail = s.config.Path() + " 不存在"
		item.Suggestion = "请运行 openclawsetup install，安装完成后会生成默认网关配置"
		return item
	}
	item.Status = DiagnosePass
	item.Detail = s.config.Path()
	return item
}

func (s *Service) checkConfigValid() DiagnoseItem {
	item := DiagnoseItem{Name: "config_valid", Label: "配置文件格式正确"}
	if s.config == nil || !s.config.Exists() {
		item.Status = DiagnoseWarn
		item.Detail = "跳过：配置文件不存在"
		return item
	}
	cfg, err := s.config.Load()
	if err != nil {
		item.Status = DiagnoseFail
		item.Detail = err.Error()
		item.Suggestion = "请检查配置文件 JSON5 语法是否正确"
		return item
	}
	item.Status = DiagnosePass
	item.Detail = fmt.Sprintf("%d 个顶级键", len(cfg))
	return item
}

func checkGatewayState(state GatewayState) DiagnoseItem {
	item := DiagnoseItem{Name: "gateway_status", Label: "Gateway 状态"}
	if state == Running {
		item.Status = DiagnosePass
		item.Detail = "gateway status 报告运行中"
		return item
	}
	item.Status = DiagnoseFail
	item.Detail = "Gateway 未运行"
	item.Suggestion = "请运行 openclawsetup gateway start"
	return item
}

func (s *Service) checkPortReachable(listening bool) DiagnoseItem {
	port := s.Port()
	item := DiagnoseItem{Name: "port_reachable", Label: fmt.Sprintf("端口 %d 可达", port)}
	if !listening {
		item.Status = DiagnoseFail
		item.Detail = fmt.Sprintf("127.0.0.1:%d 连接被拒绝", port)
		item.Suggestion = "Gateway 未在该端口监听，请确认 Gateway 已启动且端口配置正确"
		return item
	}
	item.Status = DiagnosePass
	item.Detail = fmt.Sprintf("127.0.0.1:%d TCP 连接成功", port)
	return item
}

func (s *Service) checkGatewayAPI(listening bool) DiagnoseItem {
	item := DiagnoseItem{Name: "gateway_api", Label: "Gateway HTTP 响应"}
	if !listening {
		item.Status = DiagnoseWarn
		item.Detail = "跳过：端口不可达"
		return item
	}
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://127.0.0.1:" + strconv.Itoa(s.Port()) + "/health")
	if err != nil {
		item.Status = DiagnoseWarn
		item.Detail = fmt.Sprintf("HTTP 请求失败: %v", err)
		item.Suggestion = "端口可达但 HTTP 无响应，可能不是 OpenClaw Gateway 在监听"
		return item
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		item.Status = DiagnoseWarn
		item.Detail = fmt.Sprintf("HTTP 状态码 %d", resp.StatusCode)
		item.Suggestion = "Gateway 返回服务器错误，请检查 " + s.LogPath()
		return item
	}
	item.Status = DiagnosePass
	item.Detail = fmt.Sprintf("HTTP 状态码 %d", resp.StatusCode)
	return item
}

func (s *Service) checkPortConflict(state GatewayState, listening bool) DiagnoseItem {
	port := s.Port()
	item := DiagnoseItem{Name: "port_conflict", Label: "端口冲突检测"}
	switch {
	case !listening:
		item.Status = DiagnosePass
		item.Detail = fmt.Sprintf("端口 %d 未被占用", port)
	case state == Running:
		item.Status = DiagnosePass
		item.Detail = fmt.Sprintf("端口 %d 由 Gateway 占用", port)
	default:
		item.Status = DiagnoseWarn
		item.Detail = fmt.Sprintf("端口 %d 被占用，但 gateway status 未报告运行", port)
		item.Suggestion = "可能是前台模式运行的网关或其他程序，可运行 openclawsetup gateway stop 释放端口"
	}
	return item
}
