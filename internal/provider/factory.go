package provider

import (
	"fmt"
	"time"

	"tradebridge/internal/models"
	"tradebridge/pkg/utils"
)

// Имена источников в порядке объединения снимка
const (
	SourceMetaApi     = "metaapi"
	SourceHankox      = models.PlatformHankox
	SourceTradeLocker = models.PlatformTradeLocker
	SourceBinance     = models.PlatformBinance
)

// StaticPlatforms - платформы из каталога, в порядке объявления
var StaticPlatforms = []string{
	models.PlatformHankox,
	models.PlatformTradeLocker,
	models.PlatformBinance,
}

// Options - параметры построения источников
type Options struct {
	MetaApi     *MetaApiConfig // nil = удаленный источник выключен
	CatalogPath string         // пусто = встроенный каталог
	Logger      *utils.Logger
}

// Build создает источники в порядке: удаленный провайдер, затем hankox,
// tradelocker, binance. Возвращает также создателя счетов (или nil).
func Build(opts Options) ([]Source, AccountCreator, error) {
	log := opts.Logger
	if log == nil {
		log = utils.L()
	}

	var sources []Source
	var creator AccountCreator

	if opts.MetaApi != nil {
		m, err := NewMetaApi(*opts.MetaApi, log)
		if err != nil {
			return nil, nil, fmt.Errorf("metaapi source: %w", err)
		}
		sources = append(sources, m)
		creator = m
	}

	catalog, err := LoadCatalog(opts.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	for _, platform := range StaticPlatforms {
		sources = append(sources, NewStaticSource(platform, catalog.ForPlatform(platform)))
	}

	log.Info("account sources configured",
		utils.Count(len(sources)),
		utils.Bool("account_creation", creator != nil),
	)

	return sources, creator, nil
}

// PlatformInfo описывает платформу для формы подключения счета
type PlatformInfo struct {
	Platform        string `json:"platform"`
	CreateSupported bool   `json:"create_supported"`
}

// DescribePlatforms возвращает все платформы с признаком поддержки создания
func DescribePlatforms(creator AccountCreator) []PlatformInfo {
	supported := make(map[string]bool)
	if creator != nil {
		for _, p := range creator.Platforms() {
			supported[p] = true
		}
	}

	out := make([]PlatformInfo, 0, len(models.Platforms))
	for _, p := range models.Platforms {
		out = append(out, PlatformInfo{Platform: p, CreateSupported: supported[p]})
	}
	return out
}

// defaultTimeout для MetaApiConfig без явного таймаута
const defaultTimeout = 10 * time.Second
