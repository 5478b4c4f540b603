package suggest

import (
	"context"
	"strings"

	"jizhang/internal/core"
)

// KeywordSuggester matches descriptions against keyword lists. It is used when no
// language model is configured and never fails.
type KeywordSuggester struct {
	rules []keywordRule
}

type keywordRule struct {
	category core.Category
	keywords []string
}

func NewKeywordSuggester() *KeywordSuggester {
	return &KeywordSuggester{rules: defaultRules}
}

// Rules are checked in order; the first match wins.
var defaultRules = []keywordRule{
	{core.CategoryBills, []string{
		"电费", "水费", "燃气", "煤气", "话费", "宽带", "房租", "物业", "账单", "保险",
		"rent", "electricity", "water bill", "internet", "phone bill", "insurance",
	}},
	{core.CategoryHealthcare, []string{
		"医院", "药", "挂号", "体检", "牙", "诊所", "健身",
		"hospital", "pharmacy", "doctor", "dentist", "medicine", "gym",
	}},
	{core.CategoryTransport, []string{
		"地铁", "公交", "打车", "出租", "滴滴", "高铁", "火车", "机票", "加油", "停车", "共享单车",
		"uber", "taxi", "metro", "subway", "bus", "train", "flight", "fuel", "parking",
	}},
	{core.CategoryEntertainment, []string{
		"电影", "游戏", "演唱会", "ktv", "门票", "会员", "旅游",
		"cinema", "movie", "netflix", "spotify", "concert", "steam", "ticket",
	}},
	{core.CategoryGroceries, []string{
		"超市", "日用", "纸巾", "洗衣", "牙膏", "洗发", "菜市场", "蔬菜", "水果",
		"supermarket", "groceries", "detergent", "toilet paper",
	}},
	{core.CategoryFood, []string{
		"早餐", "午饭", "午餐", "晚饭", "晚餐", "外卖", "餐", "饭", "咖啡", "奶茶", "火锅", "面",
		"restaurant", "lunch", "dinner", "breakfast", "coffee", "pizza", "burger", "cafe",
	}},
	{core.CategoryShopping, []string{
		"淘宝", "京东", "拼多多", "衣服", "鞋", "包", "手机", "电脑", "购物",
		"amazon", "clothes", "shoes", "shopping", "laptop",
	}},
}

func (k *KeywordSuggester) Suggest(_ context.Context, description string) (core.Category, error) {
	text := strings.ToLower(description)
	for _, rule := range k.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category, nil
			}
		}
	}
	return core.CategoryOther, nil
}
