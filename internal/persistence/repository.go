package persistence

import "binance-signal-bots-go/internal/models"

// Repository 抽象了 bot 状态与模型的键值存储。
// 未找到时 Load* 返回 (nil, nil)。
type Repository interface {
	// LoadBotState 读取指定 bot 的状态
	LoadBotState(botName string) (*models.BotState, error)

	// SaveBotState 原子地覆盖写入 bot 状态
	SaveBotState(state *models.BotState) error

	// ListBotStates 返回所有已保存的 bot 状态，按名称排序
	ListBotStates() ([]models.BotState, error)

	// LoadModel 读取已训练模型的二进制内容
	LoadModel(key string) ([]byte, error)

	// SaveModel 保存已训练模型
	SaveModel(key string, blob []byte) error

	Close() error
}
