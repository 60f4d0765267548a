package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"resty.dev/v3"

	"tradebridge/internal/models"
	"tradebridge/pkg/ratelimit"
	"tradebridge/pkg/retry"
	"tradebridge/pkg/utils"
)

// MetaApiConfig - параметры подключения к облачному API MetaTrader
type MetaApiConfig struct {
	ProvisioningURL string
	ClientURL       string
	Token           string
	AccountIDs      []string
	Timeout         time.Duration
	Rate            float64
	Burst           float64
	MaxRetries      int
}

const (
	metaApiAccountsPath = "/users/current/accounts"
	metaApiAuthHeader   = "auth-token"
)

// Состояния MetaApi
const (
	metaApiConnected = "CONNECTED"
	metaApiDeploying = "DEPLOYING"
)

// metaApiAccount - ответ provisioning API
type metaApiAccount struct {
	ID               string `json:"_id"`
	Name             string `json:"name"`
	Login            string `json:"login"`
	Server           string `json:"server"`
	Platform         string `json:"platform"`
	State            string `json:"state"`
	ConnectionStatus string `json:"connectionStatus"`
}

// metaApiAccountInformation - ответ client API
type metaApiAccountInformation struct {
	Broker   string  `json:"broker"`
	Currency string  `json:"currency"`
	Server   string  `json:"server"`
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Type     string  `json:"type"` // ACCOUNT_TRADE_MODE_DEMO, ACCOUNT_TRADE_MODE_REAL...
}

type metaApiCreateRequest struct {
	Name     string `json:"name"`
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
	Platform string `json:"platform"`
	Magic    int    `json:"magic"`
}

type metaApiCreateResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type metaApiError struct {
	ID      int    `json:"id"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// MetaApi - удаленный источник счетов MT4/MT5
type MetaApi struct {
	provisioning *resty.Client
	client       *resty.Client
	limiter      *ratelimit.RateLimiter
	retryCfg     retry.Config
	log          *utils.Logger

	mu         sync.RWMutex
	accountIDs []string
}

// NewMetaApi создает источник. Токен обязателен.
func NewMetaApi(cfg MetaApiConfig, log *utils.Logger) (*MetaApi, error) {
	if cfg.Token == "" {
		return nil, errors.New("metaapi token is required")
	}
	for _, raw := range []string{cfg.ProvisioningURL, cfg.ClientURL} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return nil, fmt.Errorf("invalid metaapi url %q: %w", raw, err)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = utils.L()
	}
	log = log.WithComponent("metaapi")

	newClient := func(base string) *resty.Client {
		return resty.New().
			SetLogger(log.Sugar()).
			SetBaseURL(strings.TrimRight(base, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader(metaApiAuthHeader, cfg.Token).
			SetHeader("Accept", "application/json")
	}

	retryCfg := retry.ProviderConfig(cfg.MaxRetries)
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("metaapi request failed, retrying",
			utils.Int("attempt", attempt),
			utils.Duration("delay", delay),
			utils.Err(err),
		)
	}

	return &MetaApi{
		provisioning: newClient(cfg.ProvisioningURL),
		client:       newClient(cfg.ClientURL),
		limiter:      ratelimit.NewRateLimiter(cfg.Rate, cfg.Burst),
		retryCfg:     retryCfg,
		log:          log,
		accountIDs:   append([]string(nil), cfg.AccountIDs...),
	}, nil
}

// Name возвращает имя источника
func (m *MetaApi) Name() string {
	return SourceMetaApi
}

// Platforms - создание счетов доступно только для MetaTrader
func (m *MetaApi) Platforms() []string {
	return []string{models.PlatformMT4, models.PlatformMT5}
}

// AccountIDs возвращает отслеживаемые счета
func (m *MetaApi) AccountIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.accountIDs...)
}

// FetchAccounts запрашивает каждый отслеживаемый счет по очереди.
// Ошибки отдельных счетов объединяются, полученные счета возвращаются.
func (m *MetaApi) FetchAccounts(ctx context.Context) ([]*models.Account, error) {
	ids := m.AccountIDs()
	accounts := make([]*models.Account, 0, len(ids))
	var errs []error

	for _, id := range ids {
		acc, err := m.fetchAccount(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return accounts, ctx.Err()
			}
			m.log.Warn("metaapi account fetch failed", utils.AccountID(id), utils.Err(err))
			errs = append(errs, fmt.Errorf("account %s: %w", id, err))
			continue
		}
		accounts = append(accounts, acc)
	}

	return accounts, errors.Join(errs...)
}

func (m *MetaApi) fetchAccount(ctx context.Context, id string) (*models.Account, error) {
	var raw metaApiAccount
	path := metaApiAccountsPath + "/" + url.PathEscape(id)
	if err := m.do(ctx, m.provisioning, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var info *metaApiAccountInformation
	if raw.ConnectionStatus == metaApiConnected {
		info = &metaApiAccountInformation{}
		if err := m.do(ctx, m.client, http.MethodGet, path+"/account-information", nil, info); err != nil {
			return nil, err
		}
	}

	return normalizeMetaApiAccount(id, &raw, info)
}

// CreateAccount регистрирует счет MT4/MT5 и начинает отслеживать его
func (m *MetaApi) CreateAccount(ctx context.Context, req *models.NewAccountRequest) (*models.Account, error) {
	if !models.IsMetaTrader(req.Platform) {
		return nil, fmt.Errorf("platform %q: account creation is not supported", req.Platform)
	}

	body := &metaApiCreateRequest{
		Name:     req.Name,
		Login:    strings.TrimSpace(req.Login),
		Password: req.Password,
		Server:   strings.TrimSpace(req.Server),
		Platform: req.Platform,
	}
	var created metaApiCreateResponse
	if err := m.do(ctx, m.provisioning, http.MethodPost, metaApiAccountsPath, body, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, &ProviderError{Source: SourceMetaApi, Status: http.StatusOK, Message: "empty account id in response"}
	}

	m.mu.Lock()
	m.accountIDs = append(m.accountIDs, created.ID)
	m.mu.Unlock()

	m.log.Info("metaapi account created",
		utils.AccountID(created.ID),
		utils.Platform(req.Platform),
		utils.String("state", created.State),
	)

	broker := req.Broker
	if broker == "" {
		broker = body.Server
	}
	return &models.Account{
		ID:                created.ID,
		Name:              req.Name,
		Platform:          req.Platform,
		Broker:            broker,
		AccountIdentifier: body.Login,
		AccountClass:      classFromServer(body.Server),
		ConnectionStatus:  models.ConnectionConnecting,
	}, nil
}

// do выполняет запрос с ограничением частоты и повторами
func (m *MetaApi) do(ctx context.Context, c *resty.Client, method, path string, body, result interface{}) error {
	return retry.Do(ctx, func() error {
		if err := m.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		req := c.R().
			SetContext(ctx).
			SetResult(result).
			SetError(&metaApiError{})
		if body != nil {
			req.SetBody(body)
		}

		start := time.Now()
		resp, err := req.Execute(method, path)
		if err != nil {
			return err
		}
		m.log.Debug("metaapi response",
			utils.HTTPMethod(method),
			utils.HTTPPath(path),
			utils.HTTPStatus(resp.StatusCode()),
			utils.Latency(float64(time.Since(start).Microseconds())/1000),
		)

		if resp.IsSuccess() {
			return nil
		}
		perr := toProviderError(resp.StatusCode(), resp.Status(), resp.Error())
		if !perr.Retryable() {
			return retry.Permanent(perr)
		}
		return perr
	}, m.retryCfg)
}

// Close закрывает HTTP клиенты
func (m *MetaApi) Close() error {
	return errors.Join(m.provisioning.Close(), m.client.Close())
}

func toProviderError(status int, statusText string, body interface{}) *ProviderError {
	perr := &ProviderError{Source: SourceMetaApi, Status: status, Message: statusText}
	if e, ok := body.(*metaApiError); ok && e != nil && e.Message != "" {
		perr.Code = e.Error
		perr.Message = e.Message
	}

	switch {
	case status == http.StatusNotFound:
		perr.Original = ErrAccountNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		perr.Original = ErrUnauthorized
	case status == http.StatusTooManyRequests:
		perr.Original = ErrRateLimited
	}
	return perr
}

// normalizeMetaApiAccount приводит ответ MetaApi к models.Account.
// info == nil для неподключенных счетов: баланс и эквити неизвестны.
// Платформа вне MT4/MT5 в снимок не попадает.
func normalizeMetaApiAccount(id string, raw *metaApiAccount, info *metaApiAccountInformation) (*models.Account, error) {
	platform := strings.ToLower(strings.TrimSpace(raw.Platform))
	if !models.IsMetaTrader(platform) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, raw.Platform)
	}

	acc := &models.Account{
		ID:                id,
		Name:              raw.Name,
		Platform:          platform,
		Broker:            raw.Server,
		AccountIdentifier: raw.Login,
		AccountClass:      classFromServer(raw.Server),
		ConnectionStatus:  normalizeConnection(raw.ConnectionStatus, raw.State),
	}
	if raw.ID != "" {
		acc.ID = raw.ID
	}
	if info != nil {
		if info.Broker != "" {
			acc.Broker = info.Broker
		}
		acc.Balance = nonNegative(info.Balance)
		acc.Equity = nonNegative(info.Equity)
		acc.Currency = info.Currency
		acc.AccountClass = classFromTradeMode(info.Type)
	}
	return acc, nil
}

func normalizeConnection(connectionStatus, state string) string {
	switch {
	case connectionStatus == metaApiConnected:
		return models.ConnectionConnected
	case state == metaApiDeploying:
		return models.ConnectionConnecting
	default:
		return models.ConnectionDisconnected
	}
}

func classFromTradeMode(tradeMode string) string {
	if strings.Contains(strings.ToUpper(tradeMode), "DEMO") {
		return models.AccountClassDemo
	}
	return models.AccountClassLive
}

func classFromServer(server string) string {
	if strings.Contains(strings.ToLower(server), "demo") {
		return models.AccountClassDemo
	}
	return models.AccountClassLive
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
