package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/wfunc/vending-machine/internal/errors"
	"github.com/wfunc/vending-machine/internal/logger"
	"github.com/wfunc/vending-machine/internal/repository"
	"github.com/wfunc/vending-machine/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword 出厂默认管理密码，首次登录后应尽快修改
const DefaultPassword = "admin"

// AuthService 管理端认证服务
// 单管理员模型：一台机器一个密码，哈希存在配置存储里。
// 令牌有效期就是会话超时，过期重新登录。
type AuthService struct {
	settings repository.SettingRepository
	jwt      *utils.JWTManager
	log      *zap.Logger
}

// NewAuthService 创建认证服务
func NewAuthService(settings repository.SettingRepository, jwt *utils.JWTManager) *AuthService {
	return &AuthService{
		settings: settings,
		jwt:      jwt,
		log:      logger.GetModuleLogger("service.auth"),
	}
}

// Login 校验密码并签发令牌
func (s *AuthService) Login(ctx context.Context, password string) (string, error) {
	if !s.verify(ctx, password) {
		s.log.Warn("管理端登录失败")
		return "", errors.New(errors.ErrWrongPassword, "密码错误")
	}

	token, err := s.jwt.GenerateToken(uuid.NewString())
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTokenGeneration, "生成令牌失败")
	}
	s.log.Info("管理端登录成功")
	return token, nil
}

// ChangePassword 修改管理密码
func (s *AuthService) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if !s.verify(ctx, oldPassword) {
		return errors.New(errors.ErrWrongPassword, "原密码错误")
	}
	if len(newPassword) < 4 {
		return errors.New(errors.ErrInvalidParam, "新密码至少4位")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "密码加密失败")
	}
	if err := s.settings.Set(ctx, repository.KeyPasswordHash, string(hash)); err != nil {
		return errors.Wrap(err, errors.ErrStoreWrite, "密码保存失败")
	}
	s.log.Info("管理密码已修改")
	return nil
}

// verify 校验密码。没存过哈希时按出厂默认密码比对。
func (s *AuthService) verify(ctx context.Context, password string) bool {
	hash := s.settings.GetString(ctx, repository.KeyPasswordHash, "")
	if hash == "" {
		return password == DefaultPassword
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Validate 校验令牌
func (s *AuthService) Validate(token string) (*utils.JWTClaims, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		if err == utils.ErrExpiredToken {
			return nil, errors.New(errors.ErrTokenExpired, "会话已过期，请重新登录")
		}
		return nil, errors.New(errors.ErrTokenInvalid, "无效令牌")
	}
	return claims, nil
}
