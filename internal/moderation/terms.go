package moderation

// DefaultConfig returns the built-in term sets used when no term file is
// configured.
//
// Chinese blocked terms are multi-character phrases; single characters such
// as 操, 日, 干 or 打 are deliberately absent because they appear in too many
// ordinary words. Safe phrases cover common words that still contain a
// blocked substring.
func DefaultConfig() Config {
	return Config{
		BlockedTerms: append([]string(nil), defaultBlockedTerms...),
		SafePhrases:  append([]string(nil), defaultSafePhrases...),
	}
}

var defaultBlockedTerms = []string{
	// Chinese
	"傻逼", "傻B", "SB", "草泥马", "操你妈", "操他妈", "你妈", "他妈的", "妈的", "卧槽", "我靠",
	"滚", "去死", "打死", "杀人", "砍死", "揍你", "干你", "艹",
	"垃圾", "废物", "白痴", "智障", "脑残", "弱智", "蠢货", "笨蛋",
	"骗子", "诈骗", "坑人", "骗人", "偷窃", "抢劫", "盗窃", "强奸",
	"色情", "黄色", "做爱", "性爱", "淫荡", "淫秽", "骚货", "贱人",
	"政治", "政府", "党", "国家", "领导人",

	// English, whole-word only
	"fuck", "shit", "damn", "bitch", "asshole", "bastard", "crap",
	"stupid", "idiot", "moron", "retard", "dumb", "fool",
	"kill", "die", "death", "murder", "suicide",
	"sex", "porn", "pornography", "nude", "naked", "erotic",
	"drug", "cocaine", "heroin", "marijuana",
	"hate", "violence", "terror", "terrorist",
	"spam", "scam", "fraud", "cheat", "steal", "rob",
}

var defaultSafePhrases = []string{
	// 操
	"曹操", "操作", "体操", "操守", "操劳", "操持", "操办", "操场", "操练", "情操", "节操",
	// 日
	"日本", "日期", "生日", "今日", "明日", "昨日", "节日", "假日", "星期日", "工作日", "日用", "日记", "日光", "日常", "日用品", "某日",
	// 干
	"干活", "干净", "干杯", "饼干", "若干", "干扰", "干练", "干吗", "才干", "树干", "骨干", "包干", "晾干", "风干", "相干",
	// 打
	"打球", "打字", "打工", "打扫", "打针", "打饭", "打包", "打车", "打水", "打开", "打算", "打听", "打扮", "打击", "打印", "打折", "打勾", "打杂", "打牌", "打游戏", "打电话",
	// 死
	"生死", "死亡", "死活", "死心", "死党", "死结", "死胡同", "猝死", "生死线",
	// 杀
	"杀菌", "杀毒", "杀青", "杀价", "杀气", "杀鸡", "杀鱼",
	// 坑
	"坑道", "坑洼", "坑口", "矿坑", "泥坑", "坑坑洼洼",
	// 偷 抢 盗
	"偷懒", "偷看", "偷听", "偷袭", "抢购", "抢修", "抢收", "抢答", "盗版", "盗墓", "盗贼", "海盗", "盗窃案",
	// 性
	"性别", "性格", "理性", "感性", "人性", "个性", "性质", "性能", "弹性", "惯性", "记性", "索性", "良性", "恶性", "中性",
	// 淫
	"淫雨", "淫威",
	// 骚
	"骚动", "骚乱", "风骚", "离骚",
	// 贱
	"贱卖", "贱价", "贵贱", "贫贱",
}
