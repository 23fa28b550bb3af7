package config

import (
	"github.com/spf13/viper"
	"sync"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		viper.AutomaticEnv()

		viper.BindEnv("http_port", "HTTP_PORT")
		viper.BindEnv("db_path", "DB_PATH")
		viper.BindEnv("agent_id", "AGENT_ID")
		viper.BindEnv("price_source", "PRICE_SOURCE")
		viper.BindEnv("price_api_url", "PRICE_API_URL")
		viper.BindEnv("price_api_key", "PRICE_API_KEY")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("vs_currency", "VS_CURRENCY")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("telegram_chat_ids", "TELEGRAM_CHAT_IDS")
		viper.BindEnv("debug", "DEBUG")

		viper.SetDefault("http_port", 8080)
		viper.SetDefault("db_path", "data/price-sentinel.db")
		viper.SetDefault("agent_id", "default")
		viper.SetDefault("price_source", "gecko")
		viper.SetDefault("price_api_url", "https://api.coingecko.com/api/v3")
		viper.SetDefault("vs_currency", "usd")
		viper.SetDefault("debug", false)
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}
