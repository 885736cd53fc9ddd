package persistence

import (
	"binance-signal-bots-go/internal/models"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"
)

var (
	statePrefix = []byte("state/")
	modelPrefix = []byte("model/")
)

// badgerRepository 基于 BadgerDB 的 Repository 实现
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository 打开（或创建）dbPath 下的数据库
func NewBadgerRepository(dbPath string) (Repository, error) {
	opts := badger.DefaultOptions(dbPath)
	// 关闭 badger 自带日志，错误仍通过返回值传递
	opts.Logger = nil
	return open(opts)
}

// NewInMemoryRepository 用于测试和回放模式，数据不落盘
func NewInMemoryRepository() (Repository, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (Repository, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &badgerRepository{db: db}, nil
}

func stateKey(botName string) []byte {
	return append(append([]byte{}, statePrefix...), botName...)
}

func modelKey(key string) []byte {
	return append(append([]byte{}, modelPrefix...), key...)
}

// SaveBotState 序列化为 JSON 后写入
func (r *badgerRepository) SaveBotState(state *models.BotState) error {
	if state == nil || state.BotName == "" {
		return errors.New("bot state requires a bot name")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(state.BotName), data)
	})
}

// LoadBotState 未找到时返回 (nil, nil)
func (r *badgerRepository) LoadBotState(botName string) (*models.BotState, error) {
	data, err := r.get(stateKey(botName))
	if err != nil || data == nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("state value for %s is empty in database", botName)
	}
	var state models.BotState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state for %s: %w", botName, err)
	}
	return &state, nil
}

// ListBotStates 遍历 state/ 前缀
func (r *badgerRepository) ListBotStates() ([]models.BotState, error) {
	var states []models.BotState
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(statePrefix); it.ValidForPrefix(statePrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var s models.BotState
				if err := json.Unmarshal(val, &s); err != nil {
					return err
				}
				states = append(states, s)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(states, func(i, j int) bool { return states[i].BotName < states[j].BotName })
	return states, nil
}

// LoadModel 未找到时返回 (nil, nil)
func (r *badgerRepository) LoadModel(key string) ([]byte, error) {
	return r.get(modelKey(key))
}

func (r *badgerRepository) SaveModel(key string, blob []byte) error {
	if len(blob) == 0 {
		return errors.New("refusing to save empty model")
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(modelKey(key), blob)
	})
}

// get 读取一个键，未找到返回 (nil, nil)
func (r *badgerRepository) get(key []byte) ([]byte, error) {
	var out []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

func (r *badgerRepository) Close() error {
	return r.db.Close()
}
