// Copyright (c) PromptGate Authors.
// Licensed under the MIT License.

// Package config 提供 PromptGate 的统一配置加载能力，
// 支持默认值、YAML 文件与环境变量三级覆盖，并在加载时校验。
package config
