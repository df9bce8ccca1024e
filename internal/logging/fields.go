package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ObjectFields 提供 key/命中状态字段，供对象接口的访问日志复用。
func ObjectFields(action, key string, hit bool) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"key":       key,
		"cache_hit": hit,
	}
}
