// Loads persistent build defaults from YAML configuration files.
package config
