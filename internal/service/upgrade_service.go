package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/wfunc/vending-machine/internal/errors"
	"github.com/wfunc/vending-machine/internal/logger"
	"go.uber.org/zap"
)

// MachineGate 升级期间挂起交易主循环的钩子
type MachineGate interface {
	EnterMaintenance() error
	ExitMaintenance() error
}

// UpgradeService 固件升级服务
// 新镜像先完整写进staging文件，校验通过后一步os.Rename原子替换。
// rename之前的任何失败都不碰正在运行的镜像，旧固件始终可启动。
type UpgradeService struct {
	machine     MachineGate
	stagingPath string
	targetPath  string
	reboot      func()

	mu       sync.Mutex
	busy     bool
	status   string
	received int64

	log *zap.Logger
}

// NewUpgradeService 创建升级服务
func NewUpgradeService(machine MachineGate, stagingPath, targetPath string, reboot func()) *UpgradeService {
	return &UpgradeService{
		machine:     machine,
		stagingPath: stagingPath,
		targetPath:  targetPath,
		reboot:      reboot,
		status:      "空闲",
		log:         logger.GetModuleLogger("service.upgrade"),
	}
}

// Status 当前升级状态描述
func (s *UpgradeService) Status() (status string, busy bool, received int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.busy, s.received
}

// Apply 接收完整镜像流并完成升级
// 全程独占：并发的第二次上传直接拒绝。
func (s *UpgradeService) Apply(r io.Reader, size int64) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return errors.New(errors.ErrUpgradeInProgress, "已有升级在进行")
	}
	s.busy = true
	s.status = "接收中"
	s.received = 0
	s.mu.Unlock()

	err := s.apply(r, size)

	s.mu.Lock()
	s.busy = false
	if err != nil {
		s.status = fmt.Sprintf("失败: %s", errors.GetMessage(err))
	} else {
		s.status = "成功，等待重启"
	}
	s.mu.Unlock()
	return err
}

func (s *UpgradeService) apply(r io.Reader, size int64) error {
	if size <= 0 {
		return errors.New(errors.ErrInvalidParam, "镜像大小无效")
	}

	// 挂起交易逻辑，出货中则拒绝升级
	if err := s.machine.EnterMaintenance(); err != nil {
		return err
	}
	defer func() {
		if err := s.machine.ExitMaintenance(); err != nil {
			s.log.Error("退出维护状态失败", zap.Error(err))
		}
	}()

	s.log.Warn("开始固件升级", zap.Int64("size", size))

	if err := os.MkdirAll(filepath.Dir(s.stagingPath), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrUpgradeWrite, "创建升级目录失败")
	}

	f, err := os.OpenFile(s.stagingPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return errors.Wrap(err, errors.ErrUpgradeWrite, "创建staging文件失败")
	}

	written, err := io.Copy(f, io.LimitReader(r, size))
	s.mu.Lock()
	s.received = written
	s.mu.Unlock()

	if err != nil {
		f.Close()
		os.Remove(s.stagingPath)
		return errors.Wrap(err, errors.ErrUpgradeWrite, "镜像写入失败")
	}
	if written != size {
		f.Close()
		os.Remove(s.stagingPath)
		return errors.Newf(errors.ErrUpgradeWrite, "镜像不完整: 收到%d字节，预期%d字节", written, size)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(s.stagingPath)
		return errors.Wrap(err, errors.ErrUpgradeWrite, "镜像落盘失败")
	}
	if err := f.Close(); err != nil {
		os.Remove(s.stagingPath)
		return errors.Wrap(err, errors.ErrUpgradeWrite, "镜像关闭失败")
	}

	// 原子收尾：rename成功之前旧镜像一直完好
	if err := os.Rename(s.stagingPath, s.targetPath); err != nil {
		os.Remove(s.stagingPath)
		return errors.Wrap(err, errors.ErrUpgradeFinalize, "镜像替换失败")
	}

	s.log.Warn("固件升级完成", zap.String("target", s.targetPath))
	if s.reboot != nil {
		go s.reboot()
	}
	return nil
}
