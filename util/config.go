package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const Name = "nocturne"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host               string
		HttpPort           int    `yaml:"httpPort"`
		Domain             string `yaml:"domain"`
		WithFederation     bool   `yaml:"withFederation"`
		MusicNeedsApproval bool   `yaml:"musicNeedsApproval"`
		CollectionPageSize int    `yaml:"collectionPageSize"`
		AdminToken         string `yaml:"adminToken"`
		VerifyTls          bool   `yaml:"verifyTls"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Infof("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Warnf("Could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Infof("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("NOCTURNE_HOST")
	envHttpPort := os.Getenv("NOCTURNE_HTTPPORT")
	envDomain := os.Getenv("NOCTURNE_DOMAIN")
	envWithFederation := os.Getenv("NOCTURNE_WITH_FEDERATION")
	envNeedsApproval := os.Getenv("NOCTURNE_MUSIC_NEEDS_APPROVAL")
	envPageSize := os.Getenv("NOCTURNE_COLLECTION_PAGE_SIZE")
	envAdminToken := os.Getenv("NOCTURNE_ADMIN_TOKEN")
	envVerifyTls := os.Getenv("NOCTURNE_VERIFY_TLS")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			log.Warnf("Invalid NOCTURNE_HTTPPORT: %v", err)
		} else {
			c.Conf.HttpPort = v
		}
	}

	if envDomain != "" {
		c.Conf.Domain = envDomain
	}

	if envWithFederation == "true" {
		c.Conf.WithFederation = true
	}

	if envNeedsApproval == "true" {
		c.Conf.MusicNeedsApproval = true
	}

	if envPageSize != "" {
		v, err := strconv.Atoi(envPageSize)
		if err != nil {
			log.Warnf("Invalid NOCTURNE_COLLECTION_PAGE_SIZE: %v", err)
		} else {
			c.Conf.CollectionPageSize = v
		}
	}

	if envAdminToken != "" {
		c.Conf.AdminToken = envAdminToken
	}

	if envVerifyTls == "false" {
		c.Conf.VerifyTls = false
	}

	if c.Conf.CollectionPageSize <= 0 {
		c.Conf.CollectionPageSize = 50
	}

	return c, nil
}
