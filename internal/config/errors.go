package config

import "errors"

var ErrConfiguration = errors.New("invalid packaging configuration")
