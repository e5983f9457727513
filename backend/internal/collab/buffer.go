package collab

import (
	"collabDelta/backend/internal/ot/delta"
)

// 抽象文档纯文本缓冲区接口，embed 占一个 delta.EmbedPlaceholder
type Buffer interface {
	Len() int
	Apply(d *delta.Delta) error
	String() string
}

/*
结构示例

初始文档内容 `"Hello world"`：

- original buffer 内容：`"Hello world"`
- add buffer 为空 (`""`)
- piece 表：

[ (orig, offset=0, length=11) ]  // 整个文档

收到 delta [retain(5) insert(" collaborative")]：
- 在 **add buffer** 末尾追加 `" collaborative"`
- piece 表从一条拆成三条：

[
  (orig, offset=0, length=5),       // "Hello"
  (add,  offset=0, length=14),      // " collaborative"
  (orig, offset=5, length=6),       // " world"
]

只带属性的 retain 不改变纯文本，只移动位置。
*/
