package env

import "github.com/spf13/viper"

// GetString returns the string value of the env var with the given name
func GetString(name string) string {
	return viper.GetString(name)
}

// GetInt returns the int value of the env var with the given name
func GetInt(name string) int {
	return viper.GetInt(name)
}

// GetBool returns the bool value of the env var with the given name
func GetBool(name string) bool {
	return viper.GetBool(name)
}

// GetFloat64 returns the float64 value of the env var with the given name
func GetFloat64(name string) float64 {
	return viper.GetFloat64(name)
}
